// Package lmcsconfig loads YAML configuration files into arbitrary
// structs, the lighter-weight counterpart to the teacher's viper-backed
// loader: LMCS has no CLI flags to bind and no live-reload requirement,
// so a direct gopkg.in/yaml.v3 decode covers it.
package lmcsconfig

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/leandroasilva/lmcs-db/internal/errs"
)

// LoadInto decodes the YAML file at path into dst, which must be a
// pointer.
func LoadInto(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.WrapValidation("config.read", "failed to read config file", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return errs.WrapValidation("config.decode", "failed to decode config file", err)
	}
	return nil
}

// Load decodes the YAML file at path into a fresh map, for callers that
// only need to inspect raw keys.
func Load(path string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := LoadInto(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}
