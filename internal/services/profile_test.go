package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mapleroute/quotebot-backend/internal/domain"
)

func TestProfileRegistryResolve(t *testing.T) {
	reg, err := NewProfileRegistry(testLogger(t), "", []string{"group-a"}, []string{"user-dm"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	if p := reg.Resolve("group-a", "anyone"); p == nil || p.Name != "default" {
		t.Fatalf("registered group should resolve to default profile, got %+v", p)
	}
	if p := reg.Resolve("group-unknown", "anyone"); p != nil {
		t.Fatalf("unregistered group must not resolve, got %+v", p)
	}
	if p := reg.Resolve("", "user-dm"); p == nil {
		t.Fatal("allow-listed DM user should resolve")
	}
	if p := reg.Resolve("", "stranger"); p != nil {
		t.Fatalf("unknown DM user must not resolve, got %+v", p)
	}
}

func TestProfileRegistryFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `
groups:
  group-restricted:
    name: restricted
    forced_mode: air
    forced_service: FEDEX_GROUND
    show_cost_in_group: true
    show_result_in_group: false
    result_push_target: user-supervisor
    post_quote_actions: [new_quote, done]
    allowed_users: [user-ok]
  group-open: {}
dm_allowed_users:
  - user-dm
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	reg, err := NewProfileRegistry(testLogger(t), path, nil, nil)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}

	p := reg.Resolve("group-restricted", "user-ok")
	if p == nil {
		t.Fatal("allowed user should resolve")
	}
	if p.ForcedMode != domain.ModeAir || p.ForcedService != "FEDEX_GROUND" {
		t.Fatalf("forced fields not loaded: %+v", p)
	}
	if p.ShowResultInGroup || p.ResultPushTarget != "user-supervisor" {
		t.Fatalf("visibility fields not loaded: %+v", p)
	}

	if got := reg.Resolve("group-restricted", "user-blocked"); got != nil {
		t.Fatalf("user outside allow-list must not resolve, got %+v", got)
	}

	open := reg.Resolve("group-open", "anyone")
	if open == nil || !open.OffersAction(ActionDone) {
		t.Fatalf("empty group entry should default sensibly, got %+v", open)
	}

	if reg.Resolve("", "user-dm") == nil {
		t.Fatal("dm user from YAML should resolve")
	}
}
