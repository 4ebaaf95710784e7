package rider

import (
	"encoding/json"
	"fmt"

	"github.com/crankcase-data/power.report/internal/fsutil"
)

// LoadParams reads a persisted Parameters record, falling back to defaults
// when the file does not exist yet.
func LoadParams(fsys fsutil.FileSystem, path string, defaults Parameters) (Parameters, error) {
	if !fsys.Exists(path) {
		return defaults, nil
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("read rider params: %w", err)
	}
	var p Parameters
	if err := json.Unmarshal(data, &p); err != nil {
		return Parameters{}, fmt.Errorf("parse rider params %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, fmt.Errorf("invalid rider params %s: %w", path, err)
	}
	return p, nil
}

// SaveParamsFunc returns a SaveFunc persisting each committed Parameters
// record to path. Suitable as the save hook for NewHolder.
func SaveParamsFunc(fsys fsutil.FileSystem, path string) SaveFunc {
	return func(p Parameters) error {
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("encode rider params: %w", err)
		}
		if err := fsys.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write rider params %s: %w", path, err)
		}
		return nil
	}
}
