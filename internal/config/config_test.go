package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProviderConfigFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"IDP_TOKEN_TTL", "IDP_POLL_INTERVAL", "IDP_POLL_TIMEOUT", "IDP_PAGE_SIZE", "IDP_CONNECTION"} {
		t.Setenv(k, "")
	}
	t.Setenv("IDP_DOMAIN", "tenant.example.com")

	cfg, err := ProviderConfigFromEnv()
	if err != nil {
		t.Fatalf("ProviderConfigFromEnv: %v", err)
	}
	if cfg.TokenTTL != time.Hour || cfg.PollInterval != 5*time.Second || cfg.PollTimeout != 300*time.Second {
		t.Errorf("unexpected durations %+v", cfg)
	}
	if cfg.PageSize != 50 || cfg.Connection != "Username-Password-Authentication" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.TokenURL() != "https://tenant.example.com/oauth/token" {
		t.Errorf("token url = %s", cfg.TokenURL())
	}
	if cfg.ManagementAudience() != "https://tenant.example.com/api/v2/" {
		t.Errorf("audience = %s", cfg.ManagementAudience())
	}
}

func TestProviderConfigFromEnvParsesValues(t *testing.T) {
	t.Setenv("IDP_DOMAIN", "http://127.0.0.1:9000/")
	t.Setenv("IDP_TOKEN_TTL", "90")
	t.Setenv("IDP_POLL_INTERVAL", "250ms")
	t.Setenv("IDP_POLL_TIMEOUT", "")
	t.Setenv("IDP_PAGE_SIZE", "100")

	cfg, err := ProviderConfigFromEnv()
	if err != nil {
		t.Fatalf("ProviderConfigFromEnv: %v", err)
	}
	if cfg.TokenTTL != 90*time.Second || cfg.PollInterval != 250*time.Millisecond || cfg.PageSize != 100 {
		t.Errorf("unexpected parse %+v", cfg)
	}
	if cfg.ManagementURL() != "http://127.0.0.1:9000/api/v2" {
		t.Errorf("management url = %s", cfg.ManagementURL())
	}
}

func TestProviderConfigFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("IDP_TOKEN_TTL", "soon")
	if _, err := ProviderConfigFromEnv(); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	t.Setenv("IDP_TOKEN_TTL", "")
	t.Setenv("IDP_PAGE_SIZE", "-1")
	if _, err := ProviderConfigFromEnv(); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := (ProviderConfig{}).Validate(); !errors.Is(err, ErrMissingDomain) {
		t.Errorf("expected ErrMissingDomain, got %v", err)
	}
	if err := (ProviderConfig{Domain: "d"}).Validate(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if err := (ProviderConfig{Domain: "d", ClientID: "id", ClientSecret: "s"}).Validate(); err != nil {
		t.Errorf("unexpected %v", err)
	}
}

const tomlDecl = `
[rules.add-roles]
order = 1
script_file = "rules/add-roles.js"

[rules.deny-blocked]
enabled = false
script = "function (user, context, cb) { cb(null, user, context); }"

[rule_configs]
API_URL = "https://api.example.com"
LIMITS = { max = 3 }
`

func TestLoadDeclarationsTOML(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "rules"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "rules", "add-roles.js"), []byte("// roles"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "idpsync.toml")
	if err := os.WriteFile(path, []byte(tomlDecl), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadDeclarations(path)
	if err != nil {
		t.Fatalf("LoadDeclarations: %v", err)
	}
	rules := d.DesiredRules()
	if r := rules["add-roles"]; !r.Enabled || r.Order == nil || *r.Order != 1 || r.Script != "// roles" {
		t.Errorf("add-roles = %+v", r)
	}
	if r := rules["deny-blocked"]; r.Enabled || r.Order != nil {
		t.Errorf("deny-blocked = %+v", r)
	}
	if got := d.RuleConfigKeys(); len(got) != 2 || got[0] != "API_URL" || got[1] != "LIMITS" {
		t.Errorf("rule config keys = %v", got)
	}
	if got := d.RuleNames(); len(got) != 2 || got[0] != "add-roles" {
		t.Errorf("rule names = %v", got)
	}
}

func TestParseDeclarationsYAML(t *testing.T) {
	src := []byte(`
rules:
  add-roles:
    order: 2
    script: "x"
rule_configs:
  FLAG: true
`)
	d, err := ParseDeclarations(src, FormatYAML, ".")
	if err != nil {
		t.Fatalf("ParseDeclarations: %v", err)
	}
	if r := d.DesiredRules()["add-roles"]; !r.Enabled || *r.Order != 2 || r.Script != "x" {
		t.Errorf("add-roles = %+v", r)
	}
	if d.RuleConfigs["FLAG"] != true {
		t.Errorf("rule_configs = %v", d.RuleConfigs)
	}
}

func TestParseDeclarationsValidation(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want error
	}{
		{"missing script", "[rules.a]\nenabled = true\n", ErrScriptMissing},
		{"both scripts", "[rules.a]\nscript = \"x\"\nscript_file = \"a.js\"\n", ErrScriptConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseDeclarations([]byte(tc.src), FormatTOML, "."); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := FormatFromPath("decl.json"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
