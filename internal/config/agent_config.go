// Package config parses the agent's text configuration document: the set
// of ConfiguredNode entries the metrics scraper, log listener set, and
// node-data reporter all key off.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ivy-net/Ivynet-sub000/internal/nodetype"
)

// ConfiguredNode is one operator-declared node entry.
type ConfiguredNode struct {
	AssignedName   string
	ContainerName  string
	AVSType        nodetype.NodeType
	MetricPort     *int
	Image          *string
	ManifestDigest *string
}

// configDocument is the raw YAML shape before AVSType is normalised.
type configDocument struct {
	Nodes []rawNode `yaml:"nodes"`
}

type rawNode struct {
	AssignedName   string    `yaml:"assigned_name"`
	ContainerName  string    `yaml:"container_name"`
	AVSType        yaml.Node `yaml:"avs_type"`
	MetricPort     *int      `yaml:"metric_port,omitempty"`
	Image          *string   `yaml:"image,omitempty"`
	ManifestDigest *string   `yaml:"manifest_digest,omitempty"`
}

// Parse reads the agent configuration document. avs_type is accepted as
// either a bare string (`eigen-da`) or a single-key map (`{altlayer:
// xterio}`); both normalise through nodetype.Parse into the canonical
// tagged sum.
func Parse(doc []byte) ([]ConfiguredNode, error) {
	var raw configDocument
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("config: parse document: %w", err)
	}

	nodes := make([]ConfiguredNode, 0, len(raw.Nodes))
	for i, rn := range raw.Nodes {
		avsType, err := parseAVSType(rn.AVSType)
		if err != nil {
			return nil, fmt.Errorf("config: node %d (%s): %w", i, rn.AssignedName, err)
		}
		if rn.AssignedName == "" {
			return nil, fmt.Errorf("config: node %d: assigned_name is required", i)
		}
		if rn.ContainerName == "" {
			return nil, fmt.Errorf("config: node %d (%s): container_name is required", i, rn.AssignedName)
		}

		nodes = append(nodes, ConfiguredNode{
			AssignedName:   rn.AssignedName,
			ContainerName:  rn.ContainerName,
			AVSType:        avsType,
			MetricPort:     rn.MetricPort,
			Image:          rn.Image,
			ManifestDigest: rn.ManifestDigest,
		})
	}
	return nodes, nil
}

// parseAVSType accepts either a scalar string or a single-key mapping
// node and normalises both forms to the canonical NodeType.
func parseAVSType(n yaml.Node) (nodetype.NodeType, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		var s string
		if err := n.Decode(&s); err != nil {
			return nodetype.NodeType{}, err
		}
		return nodetype.Parse(s)

	case yaml.MappingNode:
		var m map[string]string
		if err := n.Decode(&m); err != nil {
			return nodetype.NodeType{}, err
		}
		if len(m) != 1 {
			return nodetype.NodeType{}, fmt.Errorf("avs_type map must have exactly one key, got %d", len(m))
		}
		for outer, inner := range m {
			return nodetype.Parse(fmt.Sprintf("%s(%s)", outer, inner))
		}
		return nodetype.NodeType{}, fmt.Errorf("unreachable")

	default:
		return nodetype.NodeType{}, fmt.Errorf("avs_type must be a string or single-key map")
	}
}
