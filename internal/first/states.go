package first

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// State is one entry of the state manifest.
type State struct {
	ID   int    `json:"Id"`
	Name string `json:"StateName"`
}

// SafeName returns the state name as a filename component.
func (s State) SafeName() string {
	name := s.Name
	if name == "" {
		name = "unknown"
	}
	return strings.ReplaceAll(name, "/", "-")
}

// ReportFileName is the workbook name the fetcher writes for a state.
func (s State) ReportFileName() string {
	return s.SafeName() + "-dui-data.xlsx"
}

// LoadStates reads and validates the state manifest. A missing, empty, or
// malformed manifest is an error; so is one with no states.
func LoadStates(path string) ([]State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("state manifest not found: %s", path)
		}
		return nil, fmt.Errorf("read state manifest: %w", err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("state manifest is empty: %s", path)
	}

	var states []State
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("parse state manifest %s: %w", path, err)
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("state manifest has no states: %s", path)
	}

	return states, nil
}
