package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/a8m/envsubst"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Options   `yaml:",inline"`
	Arguments map[string]string     `yaml:"arguments"`
	Fixtures  map[string]FixturePin `yaml:"fixtures" validate:"dive"`
	Report    Report                `yaml:"report"`
	Services  map[string]Service    `yaml:"services" validate:"dive"`
	Notify    []NotifyTarget        `yaml:"notify" validate:"dive"`
	Trigger   Trigger               `yaml:"trigger"`
}

// Options are the scalar settings that can also be given as CLI flags.
type Options struct {
	PluginPath string `yaml:"plugin_path"`
	PreCase    string `yaml:"precase"`
	PostCase   string `yaml:"postcase"`
	Timeout    string `yaml:"timeout" validate:"omitempty,duration"`
}

// FixturePin fixes the executable serving a fixture namespace.
type FixturePin struct {
	Path    string `yaml:"path" validate:"required"`
	SHA256  SHA256 `yaml:"sha256"`
	Timeout string `yaml:"timeout" validate:"omitempty,duration"`
}

type Report struct {
	XMLFile string `yaml:"xml_file"`
	NoTime  bool   `yaml:"no_time"`
}

type Service struct {
	URL    string            `yaml:"url" validate:"required"`
	Params map[string]string `yaml:"params"`
}

// Trigger selects when `seeflaw watch` re-runs a test. At most one field
// is set.
type Trigger struct {
	Interval string `yaml:"interval" validate:"omitempty,duration,excluded_with=Cron Watch"`
	Cron     string `yaml:"cron" validate:"omitempty,cronspec,excluded_with=Watch"`
	Watch    bool   `yaml:"watch"`
}

// IsZero reports whether no trigger is configured.
func (t Trigger) IsZero() bool {
	return t.Interval == "" && t.Cron == "" && !t.Watch
}

// SHA256 handles both string hashes and `false` (opt-out).
type SHA256 struct {
	Hash     string
	Disabled bool
}

func (s *SHA256) UnmarshalYAML(unmarshal func(any) error) error {
	var b bool
	if err := unmarshal(&b); err == nil {
		if b {
			return fmt.Errorf("sha256: true is not valid, use a hash string or false")
		}
		s.Disabled = true
		return nil
	}

	var str string
	if err := unmarshal(&str); err != nil {
		return fmt.Errorf("sha256: must be a hex string or false")
	}
	s.Hash = str
	return nil
}

// Notification conditions.
const (
	OnFailure = "failure"
	OnAlways  = "always"
)

// NotifyTarget handles a plain service name string or an object with overrides.
type NotifyTarget struct {
	Service  string            `yaml:"service" validate:"required"`
	Template string            `yaml:"template"`
	Params   map[string]string `yaml:"params"`
	On       string            `yaml:"on" validate:"omitempty,oneof=failure always"`
}

func (n *NotifyTarget) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err == nil {
		n.Service = str
		n.On = OnFailure
		return nil
	}

	type notifyAlias NotifyTarget
	var obj notifyAlias
	if err := unmarshal(&obj); err != nil {
		return fmt.Errorf("notify: must be a service name string or an object with service/template/params/on")
	}
	*n = NotifyTarget(obj)
	if n.On == "" {
		n.On = OnFailure
	}
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and validates
// the result.
func Parse(data []byte) (*Config, error) {
	data, err := envsubst.Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("expanding env vars: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that every notify target names a
// configured service.
func Validate(cfg *Config) error {
	if err := newValidator().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, n := range cfg.Notify {
		if _, ok := cfg.Services[n.Service]; !ok {
			return fmt.Errorf("invalid config: notify: unknown service %q", n.Service)
		}
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return yamlName(f)
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

func yamlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "-" {
		return ""
	}
	return name
}
