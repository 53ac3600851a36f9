package storage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SaveVisitedYAML writes the visited URL→fingerprint mapping of a single
// run to a YAML file, for diffing page content between runs.
func SaveVisitedYAML(filePath string, visited map[string]string) error {
	data, err := yaml.Marshal(visited)
	if err != nil {
		return fmt.Errorf("marshal visited mapping: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("write visited file '%s': %w", filePath, err)
	}
	return nil
}

// LoadVisitedYAML reads a visited URL→fingerprint mapping written by a
// previous run. A missing file is not an error; it returns an empty map.
func LoadVisitedYAML(filePath string) (map[string]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read visited file '%s': %w", filePath, err)
	}
	visited := map[string]string{}
	if err := yaml.Unmarshal(data, &visited); err != nil {
		return nil, fmt.Errorf("parse visited file '%s': %w", filePath, err)
	}
	return visited, nil
}
