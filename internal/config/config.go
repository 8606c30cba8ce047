package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models governance.yml.
type Config struct {
	Org struct {
		ID   string `yaml:"id" json:"id"`
		Name string `yaml:"name" json:"name"`
	} `yaml:"org" json:"org"`
	Scheduling struct {
		// DueSoonDays is the classifier window for the due_soon bucket.
		DueSoonDays int `yaml:"due_soon_days" json:"due_soon_days"`
		// GenerateCron schedules background cycle generation while serving.
		GenerateCron string `yaml:"generate_cron" json:"generate_cron"`
		// WindowDays is the default generation window when none is given.
		WindowDays int `yaml:"window_days" json:"window_days"`
	} `yaml:"scheduling" json:"scheduling"`
	Timeouts struct {
		RemoteCallSeconds int `yaml:"remote_call_seconds" json:"remote_call_seconds"`
	} `yaml:"timeouts" json:"timeouts"`
	RBAC struct {
		Roles map[string]Role `yaml:"roles" json:"roles"`
	} `yaml:"rbac" json:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type Role struct {
	Description string   `yaml:"description" json:"description"`
	Permissions []string `yaml:"permissions" json:"permissions"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// DueSoonWindow returns the due_soon bucket width.
func (c *Config) DueSoonWindow() int {
	if c == nil || c.Scheduling.DueSoonDays <= 0 {
		return 7
	}
	return c.Scheduling.DueSoonDays
}

// RemoteCallTimeout bounds each persistence round-trip.
func (c *Config) RemoteCallTimeout() time.Duration {
	if c == nil || c.Timeouts.RemoteCallSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Timeouts.RemoteCallSeconds) * time.Second
}

// GenerationWindowDays is the default ensure-cycles horizon.
func (c *Config) GenerationWindowDays() int {
	if c == nil || c.Scheduling.WindowDays <= 0 {
		return 31
	}
	return c.Scheduling.WindowDays
}

// RolePermissions returns the permission list for a role, nil if unknown.
func (c *Config) RolePermissions(role string) []string {
	if c == nil {
		return nil
	}
	r, ok := c.RBAC.Roles[role]
	if !ok {
		return nil
	}
	return r.Permissions
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.ID == "" {
		return fmt.Errorf("config.org.id is required")
	}
	if c.Scheduling.DueSoonDays < 0 {
		return fmt.Errorf("config.scheduling.due_soon_days must not be negative")
	}
	if c.Timeouts.RemoteCallSeconds < 0 {
		return fmt.Errorf("config.timeouts.remote_call_seconds must not be negative")
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["admin"]; !ok {
			return fmt.Errorf("config.rbac.roles must include admin")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "governance.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with gov config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default("default-org"), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default Config struct for an org.
func Default(orgID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, orgID)), &cfg)
	cfg.Org.ID = orgID
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
}

const defaultTemplate = `org:
  id: %s
  name: Default Organization

scheduling:
  due_soon_days: 7
  window_days: 31
  generate_cron: "0 0 2 * * *"

timeouts:
  remote_call_seconds: 15

rbac:
  roles:
    admin:
      description: "Full catalog and user administration"
      permissions:
        - area.manage
        - unit.manage
        - routine.manage
        - cycle.read
        - cycle.transition
        - cycle.cancel
        - cycle.generate
        - approval.decide
        - report.read
        - profile.manage
    director:
      description: "Approves cycles and reads reports"
      permissions:
        - cycle.read
        - cycle.transition
        - approval.decide
        - report.read
    owner:
      description: "Executes routines they own"
      permissions:
        - cycle.read
        - cycle.transition
        - report.read
    viewer:
      description: "Read-only access"
      permissions:
        - cycle.read
        - report.read
`
