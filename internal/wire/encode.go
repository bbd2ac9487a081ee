package wire

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/google/uuid"
)

// Encoder builds the canonical byte representation that every signature
// covers. Every string/byte field is length-prefixed (uint32 little-endian);
// every float64 is IEEE-754 little-endian; attribute maps are sorted by key
// before being written so the same logical value always produces the same
// bytes regardless of map iteration order.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 256)}
}

// Bytes returns the accumulated canonical encoding.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) WriteUUID(id uuid.UUID) *Encoder {
	e.buf = append(e.buf, id[:]...)
	return e
}

func (e *Encoder) WriteString(s string) *Encoder {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	e.buf = append(e.buf, lenBuf[:]...)
	e.buf = append(e.buf, s...)
	return e
}

func (e *Encoder) WriteBytes(b []byte) *Encoder {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	e.buf = append(e.buf, lenBuf[:]...)
	e.buf = append(e.buf, b...)
	return e
}

func (e *Encoder) WriteFloat64(f float64) *Encoder {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	e.buf = append(e.buf, b[:]...)
	return e
}

func (e *Encoder) WriteUint64(v uint64) *Encoder {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

func (e *Encoder) WriteBool(v bool) *Encoder {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	return e
}

// WriteOptionalString writes a presence byte followed by the string when set.
func (e *Encoder) WriteOptionalString(s *string) *Encoder {
	if s == nil {
		e.buf = append(e.buf, 0)
		return e
	}
	e.buf = append(e.buf, 1)
	return e.WriteString(*s)
}

// WriteOptionalBool writes a presence byte followed by the bool when set.
func (e *Encoder) WriteOptionalBool(b *bool) *Encoder {
	if b == nil {
		e.buf = append(e.buf, 0)
		return e
	}
	e.buf = append(e.buf, 1)
	return e.WriteBool(*b)
}

// WriteAttributes writes a length-prefixed list of (key,value) pairs sorted
// lexicographically by key.
func (e *Encoder) WriteAttributes(attrs map[string]string) *Encoder {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(keys)))
	e.buf = append(e.buf, lenBuf[:]...)
	for _, k := range keys {
		e.WriteString(k)
		e.WriteString(attrs[k])
	}
	return e
}

// WriteSamples writes a length-prefixed list of samples in the given order;
// callers that need order-independence should sort samples by name first.
func (e *Encoder) WriteSamples(samples []Sample) *Encoder {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(samples)))
	e.buf = append(e.buf, lenBuf[:]...)
	for _, s := range samples {
		e.WriteString(s.Name)
		e.WriteFloat64(s.Value)
		e.WriteAttributes(s.Attributes)
	}
	return e
}

// EncodeMetrics returns the canonical bytes for a MetricsPayload.
func EncodeMetrics(p MetricsPayload) []byte {
	e := NewEncoder()
	e.WriteUUID(p.MachineID)
	e.WriteOptionalString(p.AVSName)
	e.WriteSamples(p.Samples)
	return e.Bytes()
}

// EncodeNodeData returns the canonical bytes for a NodeDataPayload.
func EncodeNodeData(p NodeDataPayload) []byte {
	e := NewEncoder()
	e.WriteUUID(p.MachineID)
	e.WriteString(p.Name)
	e.WriteOptionalString(p.NodeType)
	e.WriteOptionalString(p.ImageDigest)
	e.WriteOptionalBool(p.MetricsAlive)
	e.WriteOptionalBool(p.NodeRunning)
	return e.Bytes()
}

// EncodeNameChange returns the canonical bytes for a NameChangePayload.
func EncodeNameChange(p NameChangePayload) []byte {
	e := NewEncoder()
	e.WriteUUID(p.MachineID)
	e.WriteString(p.OldName)
	e.WriteString(p.NewName)
	return e.Bytes()
}

// EncodeLog returns the canonical bytes for a LogPayload.
func EncodeLog(p LogPayload) []byte {
	e := NewEncoder()
	e.WriteUUID(p.MachineID)
	e.WriteString(p.AVSName)
	e.WriteString(p.LogText)
	return e.Bytes()
}

// EncodeMachineData returns the canonical bytes for a MachineDataPayload.
func EncodeMachineData(p MachineDataPayload) []byte {
	e := NewEncoder()
	e.WriteUUID(p.MachineID)
	e.WriteString(p.AgentVer)
	e.WriteFloat64(p.CPUPercent)
	e.WriteUint64(p.RAMUsed)
	e.WriteUint64(p.RAMFree)
	e.WriteUint64(p.DiskUsed)
	e.WriteUint64(p.DiskFree)
	e.WriteUint64(uint64(p.CoreCount))
	e.WriteUint64(p.UptimeSecs)
	return e.Bytes()
}

// EncodeHeartbeat returns the canonical bytes for a HeartbeatPayload.
func EncodeHeartbeat(p HeartbeatPayload) []byte {
	e := NewEncoder()
	e.WriteUUID(p.MachineID)
	e.WriteString(string(p.Kind))
	e.WriteString(p.ID)
	return e.Bytes()
}
