package portfolio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadState reads a portfolio from a JSON file. A missing file yields nil
// without error.
func LoadState(filePath string) (*Portfolio, error) {
	if filePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var p Portfolio
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode portfolio state %s: %w", filePath, err)
	}
	if p.Positions == nil {
		p.Positions = make(map[string]*Position)
	}
	return &p, nil
}

// SaveState writes the portfolio atomically via a temp file rename.
func SaveState(filePath string, p *Portfolio) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
