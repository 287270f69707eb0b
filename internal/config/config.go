package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models inproc.yml.
type Config struct {
	App struct {
		// BaseURL is used to build deep links into the web UI from
		// notification emails.
		BaseURL  string `yaml:"base_url"`
		TestMode bool   `yaml:"test_mode"`
	} `yaml:"app"`
	Email struct {
		From          string `yaml:"from"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"email"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run inproc init or create it by hand", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Email.SubjectPrefix == "" {
		return fmt.Errorf("config.email.subject_prefix is required")
	}
	if c.Email.From == "" {
		return fmt.Errorf("config.email.from is required")
	}
	if c.App.BaseURL != "" && !strings.HasPrefix(c.App.BaseURL, "http") {
		return fmt.Errorf("config.app.base_url must be an http(s) URL")
	}
	return nil
}

// SubjectFor builds the final subject line. Test mode tags subjects so test
// traffic is obvious in a shared inbox.
func (c *Config) SubjectFor(subject string) string {
	s := c.Email.SubjectPrefix + subject
	if c.App.TestMode {
		s = "TEST - " + s
	}
	return s
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "inproc.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing fields
// fall back to the defaults before validation.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `app:
  base_url: ""
  test_mode: false

email:
  from: inproc@localhost
  subject_prefix: "In/Out Process - "
`
