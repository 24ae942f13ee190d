// Package cfgfile reads and writes configuration files. The format is
// chosen by extension: ".toml" files use TOML, everything else JSON.
package cfgfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// IsTOML reports whether path names a TOML file.
func IsTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Decode reads path into v. Fields missing from the file keep the values
// already in v, so callers pass a struct pre-filled with defaults.
func Decode(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if IsTOML(path) {
		if _, err := toml.Decode(string(data), v); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Encode writes v to path.
func Encode(path string, v any) error {
	var data []byte
	if IsTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(v); err != nil {
			return fmt.Errorf("failed to serialize config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize config: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
