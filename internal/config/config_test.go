package config

import "testing"

func TestValidateRequiresProviders(t *testing.T) {
	c := &Config{PetID: "p1"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when api_providers is empty")
	}
}

func TestValidateRequiresAPIProviderID(t *testing.T) {
	c := &Config{
		PetID:     "p1",
		Providers: []ProviderConfig{{ID: "prov-a"}},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when social.apiProviderId is empty")
	}
}

func TestValidateOK(t *testing.T) {
	c := &Config{
		PetID:     "p1",
		Providers: []ProviderConfig{{ID: "prov-a"}},
		Social:    SocialConfig{APIProviderID: "prov-a"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveProvider(t *testing.T) {
	c := &Config{Providers: []ProviderConfig{{ID: "a"}, {ID: "b"}}}
	if _, ok := c.ResolveProvider("b"); !ok {
		t.Fatal("expected to resolve provider b")
	}
	if _, ok := c.ResolveProvider("missing"); ok {
		t.Fatal("expected missing provider to not resolve")
	}
}

func TestDeepCopyIsolatesSlices(t *testing.T) {
	c := &Config{Social: SocialConfig{WatchedGroups: []string{"g1"}}}
	cp := c.DeepCopy()
	cp.Social.WatchedGroups[0] = "mutated"
	if c.Social.WatchedGroups[0] != "g1" {
		t.Fatal("DeepCopy must not alias the original slice")
	}
}

func TestDefaultSystemConfigMatchesSpecConstants(t *testing.T) {
	s := DefaultSystemConfig()
	if s.BufferHardCap != 500 {
		t.Errorf("BufferHardCap = %d, want 500", s.BufferHardCap)
	}
	if s.IntentEvalCooldownMs != 60_000 {
		t.Errorf("IntentEvalCooldownMs = %d, want 60000", s.IntentEvalCooldownMs)
	}
	if s.IntentGateTimeoutMs != 30_000 {
		t.Errorf("IntentGateTimeoutMs = %d, want 30000", s.IntentGateTimeoutMs)
	}
	if s.MaxToolLoopIterations != 100 {
		t.Errorf("MaxToolLoopIterations = %d, want 100", s.MaxToolLoopIterations)
	}
}
