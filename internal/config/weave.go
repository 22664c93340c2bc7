package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// WeaveConfig represents the top-level funweave.yaml (or funweave.toml)
// configuration.
type WeaveConfig struct {
	// Markers names the attribute types the passes look for.
	Markers Markers `yaml:"markers" toml:"markers"`

	// Resolver names the resolution primitive rewritten by the implicit pass.
	Resolver Resolver `yaml:"resolver" toml:"resolver"`

	// Delimiter separates a specialized type name from its argument.
	// Defaults to SpecializationDelimiter.
	Delimiter string `yaml:"delimiter,omitempty" toml:"delimiter"`

	// Passes lists the passes to run, in order. Defaults to DefaultPasses.
	Passes []string `yaml:"passes,omitempty" toml:"passes"`

	// Verbose enables pass logging.
	Verbose bool `yaml:"verbose,omitempty" toml:"verbose"`
}

// Markers holds full type names of the marker attributes.
type Markers struct {
	GenerateSpecialization string `yaml:"generate_specialization,omitempty" toml:"generate_specialization"`
	InjectSpecializations  string `yaml:"inject_specializations,omitempty" toml:"inject_specializations"`
	Typeclass              string `yaml:"typeclass,omitempty" toml:"typeclass"`
}

// Resolver names the static generic method whose call sites are replaced.
type Resolver struct {
	Type   string `yaml:"type,omitempty" toml:"type"`
	Method string `yaml:"method,omitempty" toml:"method"`
}

// Default returns the configuration used when no funweave.yaml is found.
func Default() *WeaveConfig {
	cfg := &WeaveConfig{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses a funweave.yaml file.
func LoadConfig(path string) (*WeaveConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses configuration content from bytes. Paths ending in
// .toml are read as TOML, anything else as YAML. The path argument is
// otherwise used only for error messages.
func ParseConfig(data []byte, path string) (*WeaveConfig, error) {
	var cfg WeaveConfig
	var err error
	if strings.HasSuffix(path, ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.setDefaults()
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindConfig searches for funweave.yaml starting from dir and walking up
// to parent directories. Returns an empty path and nil error if none exists.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		for _, name := range []string{"funweave.yaml", "funweave.yml", "funweave.toml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// PassEnabled reports whether the named pass is part of the run.
func (c *WeaveConfig) PassEnabled(name string) bool {
	for _, p := range c.Passes {
		if p == name {
			return true
		}
	}
	return false
}

func (c *WeaveConfig) setDefaults() {
	if c.Markers.GenerateSpecialization == "" {
		c.Markers.GenerateSpecialization = GenerateSpecializationAttribute
	}
	if c.Markers.InjectSpecializations == "" {
		c.Markers.InjectSpecializations = InjectSpecializationsAttribute
	}
	if c.Markers.Typeclass == "" {
		c.Markers.Typeclass = TypeclassAttribute
	}
	if c.Resolver.Type == "" {
		c.Resolver.Type = ImplicitlyTypeName
	}
	if c.Resolver.Method == "" {
		c.Resolver.Method = ResolveMethodName
	}
	if c.Delimiter == "" {
		c.Delimiter = SpecializationDelimiter
	}
	if len(c.Passes) == 0 {
		c.Passes = append([]string(nil), DefaultPasses...)
	}
}

// validate checks the configuration for semantic errors.
func (c *WeaveConfig) validate(path string) error {
	seen := make(map[string]bool)
	for i, p := range c.Passes {
		switch p {
		case PassSpecialize, PassInject, PassImplicit:
		default:
			return fmt.Errorf("%s: passes[%d]: unknown pass %q", path, i, p)
		}
		if seen[p] {
			return fmt.Errorf("%s: passes[%d]: pass %q listed twice", path, i, p)
		}
		seen[p] = true
	}
	if c.PassEnabled(PassInject) && !c.PassEnabled(PassSpecialize) {
		return fmt.Errorf("%s: pass %q requires %q", path, PassInject, PassSpecialize)
	}
	if indexOf(c.Passes, PassInject) >= 0 && indexOf(c.Passes, PassInject) < indexOf(c.Passes, PassSpecialize) {
		return fmt.Errorf("%s: pass %q must run after %q", path, PassInject, PassSpecialize)
	}
	if strings.ContainsAny(c.Delimiter, "/<>,!: ") {
		return fmt.Errorf("%s: delimiter %q contains reserved characters", path, c.Delimiter)
	}
	for field, name := range map[string]string{
		"markers.generate_specialization": c.Markers.GenerateSpecialization,
		"markers.inject_specializations":  c.Markers.InjectSpecializations,
		"markers.typeclass":               c.Markers.Typeclass,
		"resolver.type":                   c.Resolver.Type,
	} {
		if strings.ContainsAny(name, "<>!, ") {
			return fmt.Errorf("%s: %s: %q is not a type name", path, field, name)
		}
	}
	return nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
