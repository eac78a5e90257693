package quality

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules maps limit names such as max_tempering_temperature to their values.
type Rules map[string]float64

func DefaultRules() Rules {
	return Rules{
		"max_austenitizing_temperature": 1200,
		"max_isothermal_temperature":    900,
		"max_tempering_temperature":     1500,
		"max_tempering_time":            600,
		"max_austenitizing_time":        180,
		"max_isothermal_time":           600,
		"max_carbon_equivalent":         1.0,
	}
}

// LoadRules overlays the rules file on the defaults. A missing file or an
// empty path yields the defaults. JSON files load too, being valid YAML.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return rules, nil
	}
	if err != nil {
		return nil, err
	}
	var overrides map[string]float64
	if err := yaml.Unmarshal(b, &overrides); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	for k, v := range overrides {
		rules[k] = v
	}
	return rules, nil
}

// SaveRules writes JSON for .json paths and YAML otherwise.
func SaveRules(path string, rules Rules) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		b   []byte
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		b, err = json.MarshalIndent(rules, "", "  ")
	} else {
		b, err = yaml.Marshal(rules)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
