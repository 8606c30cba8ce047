package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("acme")
	if cfg.Org.ID != "acme" {
		t.Fatalf("org id %q", cfg.Org.ID)
	}
	if cfg.DueSoonWindow() != 7 {
		t.Fatalf("due soon window %d", cfg.DueSoonWindow())
	}
	if cfg.GenerationWindowDays() != 31 {
		t.Fatalf("generation window %d", cfg.GenerationWindowDays())
	}
	if cfg.RemoteCallTimeout() != 15*time.Second {
		t.Fatalf("remote call timeout %v", cfg.RemoteCallTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	perms := cfg.RolePermissions("viewer")
	if len(perms) != 2 {
		t.Fatalf("viewer permissions %v", perms)
	}
	if cfg.RolePermissions("superuser") != nil {
		t.Fatalf("unknown role must yield nil permissions")
	}
}

func TestNilConfigFallbacks(t *testing.T) {
	var cfg *Config
	if cfg.DueSoonWindow() != 7 || cfg.GenerationWindowDays() != 31 {
		t.Fatalf("nil config must fall back to defaults")
	}
	if cfg.RolePermissions("admin") != nil {
		t.Fatalf("nil config has no roles")
	}
}

func TestFromYAMLValidation(t *testing.T) {
	if _, err := FromYAML([]byte("org: [")); err == nil {
		t.Fatalf("expected yaml error")
	}
	if _, err := FromYAML([]byte("org:\n  name: no-id\n")); err == nil {
		t.Fatalf("expected missing org id error")
	}
	// roles without admin are rejected
	_, err := FromYAML([]byte(`org:
  id: acme
rbac:
  roles:
    viewer:
      permissions: [cycle.read]
`))
	if err == nil || !strings.Contains(err.Error(), "admin") {
		t.Fatalf("expected admin role requirement, got %v", err)
	}

	cfg, err := FromYAML([]byte(GenerateDefault("acme")))
	if err != nil {
		t.Fatalf("generated default must parse: %v", err)
	}
	if cfg.Scheduling.GenerateCron == "" {
		t.Fatalf("expected generate_cron in default config")
	}
}
