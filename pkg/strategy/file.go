package strategy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PlanFile is the YAML layout accepted by the strategy and volume commands.
// Only the section for the command being run needs to be present.
type PlanFile struct {
	Volume *VolumeConfig `yaml:"volume"`
	Delay  *DelayConfig  `yaml:"delay"`
	Smart  *SmartConfig  `yaml:"smart"`
	Auto   *AutoConfig   `yaml:"auto"`
}

// LoadPlanFile reads and validates every section present in path.
func LoadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes and validates a plan document.
func ParsePlan(data []byte) (*PlanFile, error) {
	var pf PlanFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse plan file: %w", err)
	}
	if pf.Volume == nil && pf.Delay == nil && pf.Smart == nil && pf.Auto == nil {
		return nil, fmt.Errorf("plan file has no volume, delay, smart or auto section")
	}
	if pf.Volume != nil {
		pf.Volume.ApplyDefaults()
	}
	checks := []struct {
		name string
		ok   bool
		fn   func() error
	}{
		{"volume", pf.Volume != nil, func() error { return pf.Volume.Validate() }},
		{"delay", pf.Delay != nil, func() error { return pf.Delay.Validate() }},
		{"smart", pf.Smart != nil, func() error { return pf.Smart.Validate() }},
		{"auto", pf.Auto != nil, func() error { return pf.Auto.Validate() }},
	}
	for _, c := range checks {
		if !c.ok {
			continue
		}
		if err := c.fn(); err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return &pf, nil
}
