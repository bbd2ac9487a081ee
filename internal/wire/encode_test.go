package wire

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEncodeMetrics_AttributeOrderIndependent(t *testing.T) {
	machineID := uuid.New()
	name := "eigen-da-1"

	a := MetricsPayload{
		MachineID: machineID,
		AVSName:   &name,
		Samples: []Sample{
			{Name: "m", Value: 1.5, Attributes: map[string]string{"a": "1", "b": "2"}},
		},
	}
	b := MetricsPayload{
		MachineID: machineID,
		AVSName:   &name,
		Samples: []Sample{
			{Name: "m", Value: 1.5, Attributes: map[string]string{"b": "2", "a": "1"}},
		},
	}

	require.Equal(t, EncodeMetrics(a), EncodeMetrics(b))
}

func TestEncodeMetrics_DifferentValuesDiffer(t *testing.T) {
	machineID := uuid.New()
	a := MetricsPayload{MachineID: machineID, Samples: []Sample{{Name: "m", Value: 1.0}}}
	b := MetricsPayload{MachineID: machineID, Samples: []Sample{{Name: "m", Value: 2.0}}}

	require.NotEqual(t, EncodeMetrics(a), EncodeMetrics(b))
}

func TestEncodeNodeData_OptionalFieldsDistinguishUnsetFromFalse(t *testing.T) {
	machineID := uuid.New()
	alive := false

	unset := NodeDataPayload{MachineID: machineID, Name: "n"}
	setFalse := NodeDataPayload{MachineID: machineID, Name: "n", MetricsAlive: &alive}

	require.NotEqual(t, EncodeNodeData(unset), EncodeNodeData(setFalse))
}

func TestEncodeNameChange_Deterministic(t *testing.T) {
	p := NameChangePayload{MachineID: uuid.New(), OldName: "old", NewName: "new"}
	require.Equal(t, EncodeNameChange(p), EncodeNameChange(p))
}
