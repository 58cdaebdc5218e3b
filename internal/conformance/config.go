package conformance

import (
	"fmt"
	"os"
	"path"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config controls a conformance run. It is read from YAML:
//
//	rtol: 1e-3
//	atol: 1e-7
//	parallel: 4
//	exclude:
//	  - test_conv_*
type Config struct {
	RTol     float64  `yaml:"rtol"`
	ATol     float64  `yaml:"atol"`
	Parallel int      `yaml:"parallel"`
	Exclude  []string `yaml:"exclude"`
}

// DefaultConfig returns the tolerances of the ONNX backend test runner.
func DefaultConfig() Config {
	return Config{
		RTol:     1e-3,
		ATol:     1e-7,
		Parallel: max(runtime.GOMAXPROCS(0)-1, 1),
	}
}

// LoadConfig reads a YAML config. Fields missing from the file keep their
// DefaultConfig values.
//
//nolint:gosec // G304: config path is user provided.
func LoadConfig(p string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(p)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", p, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", p, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RTol < 0 || c.ATol < 0 {
		return fmt.Errorf("tolerances must be non-negative (rtol %g, atol %g)", c.RTol, c.ATol)
	}
	for _, pattern := range c.Exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// Excluded reports whether a case name matches an exclude pattern.
func (c Config) Excluded(name string) bool {
	for _, pattern := range c.Exclude {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
