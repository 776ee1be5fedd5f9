package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("TORCH_SQUARE_TOKEN", "sq-token")

	yamlContent := `
app:
  name: "torch-test"
database:
  path: "test.db"
square:
  application_id: "sandbox-app"
  location_id: "L1"
  access_token: "${TORCH_SQUARE_TOKEN}"
portal:
  demo_today: "2026-03-15"
api:
  auth:
    api_keys:
      - key: "k1"
        extra: "e1"
        name: "ops"
        permissions: ["read:inquiries"]
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Square.AccessToken != "sq-token" {
		t.Errorf("expected env-expanded access token, got %q", cfg.Square.AccessToken)
	}
	if cfg.Square.Environment != "sandbox" {
		t.Errorf("expected default environment sandbox, got %s", cfg.Square.Environment)
	}
	if !cfg.Square.Enabled() {
		t.Errorf("expected square to be enabled")
	}
	if len(cfg.API.Auth.APIKeys) != 1 || cfg.API.Auth.APIKeys[0].Name != "ops" {
		t.Errorf("expected 1 api key named ops")
	}
	if cfg.Portal.HandoffTTL() != 5*time.Minute {
		t.Errorf("expected 5m handoff ttl, got %s", cfg.Portal.HandoffTTL())
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Square:   SquareConfig{Environment: "production"},
			},
			wantErr: false,
		},
		{
			name: "missing database path",
			cfg: Config{
				Square: SquareConfig{Environment: "sandbox"},
			},
			wantErr: true,
		},
		{
			name: "unknown square environment",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Square:   SquareConfig{Environment: "staging"},
			},
			wantErr: true,
		},
		{
			name: "bad demo today",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Square:   SquareConfig{Environment: "sandbox"},
				Portal:   PortalConfig{DemoToday: "15/03/2026"},
			},
			wantErr: true,
		},
		{
			name: "duplicate api key",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Square:   SquareConfig{Environment: "sandbox"},
				API: APIConfig{Auth: APIAuthConfig{APIKeys: []APIClientKey{
					{Key: "k", Name: "a"},
					{Key: "k", Name: "b"},
				}}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.API.GRPC.Port)
	}
	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Square.APIVersion != "2024-01-18" {
		t.Errorf("expected default square api version, got %s", cfg.Square.APIVersion)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
}

func TestHandoffTTL(t *testing.T) {
	if got := (PortalConfig{LoginHandoffTTL: "90s"}).HandoffTTL(); got != 90*time.Second {
		t.Errorf("expected 90s, got %s", got)
	}
	if got := (PortalConfig{LoginHandoffTTL: "garbage"}).HandoffTTL(); got != 5*time.Minute {
		t.Errorf("expected fallback 5m, got %s", got)
	}
}
