package taxonomy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk shape of the taxonomy seed: a flat list of nodes
// whose hierarchy is expressed through parent_id references.
type seedFile struct {
	Nodes []Node `yaml:"nodes"`
}

// Parse decodes a taxonomy seed document into its node list without
// building a store. Depth values in the file are ignored.
func Parse(data []byte) ([]Node, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("taxonomy: parse seed: %w", err)
	}
	if len(seed.Nodes) == 0 {
		return nil, fmt.Errorf("taxonomy: seed contains no nodes")
	}
	return seed.Nodes, nil
}

// LoadFile reads and validates a seed file and returns a ready Store.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read seed %s: %w", path, err)
	}
	nodes, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return New(nodes)
}

// ReloadFile re-reads the seed file into an existing store. The previous
// tree survives any read or validation failure.
func ReloadFile(s *Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("taxonomy: read seed %s: %w", path, err)
	}
	nodes, err := Parse(data)
	if err != nil {
		return err
	}
	return s.Replace(nodes)
}
