package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// allowlistFile is the YAML layout of INSTRUMENTS_FILE:
//
//	instruments:
//	  - ALK
//	  - ${EXTRA_CODE}
type allowlistFile struct {
	Instruments []string `yaml:"instruments"`
}

// LoadAllowlist reads the instrument codes to synchronize. ${VAR}
// references are expanded from the environment.
func LoadAllowlist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var file allowlistFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("parse instruments yaml: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Instruments))
	codes := make([]string, 0, len(file.Instruments))
	for _, code := range file.Instruments {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("instruments file %s lists no codes", path)
	}
	return codes, nil
}
