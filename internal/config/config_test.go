package config

import "testing"

func TestLoadIncludesWorkflowDefaults(t *testing.T) {
	t.Setenv("NATS_SUBJECT", "")
	t.Setenv("STORE_OP_TIMEOUT_MS", "")
	t.Setenv("TRANSITION_MAX_ATTEMPTS", "")
	t.Setenv("API_RATE_LIMIT_RPS", "")
	t.Setenv("API_RATE_LIMIT_BURST", "")

	cfg := Load()
	if cfg.NATSSubject != "studies.changed" {
		t.Fatalf("expected default subject studies.changed, got %q", cfg.NATSSubject)
	}
	if cfg.StoreOpTimeoutMS != 5000 {
		t.Fatalf("expected default store timeout 5000, got %d", cfg.StoreOpTimeoutMS)
	}
	if cfg.TransitionMaxAttempts != 3 {
		t.Fatalf("expected default transition attempts 3, got %d", cfg.TransitionMaxAttempts)
	}
	if cfg.APIRateLimitRPS != 50 {
		t.Fatalf("expected default rate limit rps 50, got %d", cfg.APIRateLimitRPS)
	}
	if cfg.APIRateLimitBurst != 100 {
		t.Fatalf("expected default rate limit burst 100, got %d", cfg.APIRateLimitBurst)
	}
}

func TestLoadParsesWorkflowOverrides(t *testing.T) {
	t.Setenv("NATS_SUBJECT", "studies.v2.changed")
	t.Setenv("STORE_OP_TIMEOUT_MS", "2500")
	t.Setenv("TRANSITION_MAX_ATTEMPTS", "5")
	t.Setenv("API_MAX_IN_FLIGHT", "64")

	cfg := Load()
	if cfg.NATSSubject != "studies.v2.changed" {
		t.Fatalf("expected subject override, got %q", cfg.NATSSubject)
	}
	if cfg.StoreOpTimeoutMS != 2500 {
		t.Fatalf("expected store timeout 2500, got %d", cfg.StoreOpTimeoutMS)
	}
	if cfg.TransitionMaxAttempts != 5 {
		t.Fatalf("expected transition attempts 5, got %d", cfg.TransitionMaxAttempts)
	}
	if cfg.APIMaxInFlight != 64 {
		t.Fatalf("expected max in flight 64, got %d", cfg.APIMaxInFlight)
	}
}

func TestLoadFallsBackOnMalformedInt(t *testing.T) {
	t.Setenv("TRANSITION_MAX_ATTEMPTS", "not-a-number")

	cfg := Load()
	if cfg.TransitionMaxAttempts != 3 {
		t.Fatalf("expected fallback 3 for malformed int, got %d", cfg.TransitionMaxAttempts)
	}
}
