package generic

import "testing"

func TestNormalizeConfigDefaults(t *testing.T) {
	t.Parallel()

	a := New(nil)
	cfg, err := a.NormalizeConfig(map[string]any{"smtp_host": "smtp.example.com", "username": "bot@example.com"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg["from"] != "bot@example.com" {
		t.Fatalf("expected from to default to username, got %v", cfg["from"])
	}
	if cfg["smtp_port"] != float64(587) || cfg["smtp_security"] != "starttls" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestNormalizeConfigRequiresHostAndSender(t *testing.T) {
	t.Parallel()

	a := New(nil)
	if _, err := a.NormalizeConfig(map[string]any{"username": "x"}); err == nil {
		t.Fatalf("expected error without smtp_host")
	}
	if _, err := a.NormalizeConfig(map[string]any{"smtp_host": "h"}); err == nil {
		t.Fatalf("expected error without from or username")
	}
}
