package main

import (
	"testing"

	"github.com/alfredjeanlab/storescan/internal/config"
)

func TestResolveTarget(t *testing.T) {
	for _, k := range []string{"STORESCAN_HTTP_URL", "STORESCAN_SERVER", "STORESCAN_TOKEN", "STORESCAN_NATS_URL", "STORESCAN_SCOPE"} {
		t.Setenv(k, "")
	}
	profile := config.Profile{
		URL:        "http://scan.local:8080",
		GRPCAddr:   "scan.local:9090",
		Token:      "profile-token",
		NATSURL:    "nats://scan.local:4222",
		StoreScope: "Cherechiu",
	}

	t.Run("Defaults", func(t *testing.T) {
		got := resolveTarget(targetSettings{}, config.Profile{})
		want := targetSettings{HTTPURL: "http://localhost:8080", GRPCAddr: "localhost:9090"}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})

	t.Run("Profile", func(t *testing.T) {
		got := resolveTarget(targetSettings{}, profile)
		if got.HTTPURL != profile.URL || got.GRPCAddr != profile.GRPCAddr || got.Token != profile.Token ||
			got.NATSURL != profile.NATSURL || got.Scope != profile.StoreScope {
			t.Errorf("profile values not applied: %+v", got)
		}
	})

	t.Run("EnvOverridesProfile", func(t *testing.T) {
		t.Setenv("STORESCAN_SCOPE", "Adoni")
		t.Setenv("STORESCAN_TOKEN", "env-token")
		got := resolveTarget(targetSettings{}, profile)
		if got.Scope != "Adoni" || got.Token != "env-token" {
			t.Errorf("env not applied: %+v", got)
		}
	})

	t.Run("FlagsOverrideEnv", func(t *testing.T) {
		t.Setenv("STORESCAN_SCOPE", "Adoni")
		got := resolveTarget(targetSettings{Scope: "Berceni", HTTPURL: "http://other:8080"}, profile)
		if got.Scope != "Berceni" || got.HTTPURL != "http://other:8080" {
			t.Errorf("flags not applied: %+v", got)
		}
	})
}

func TestRequireScope(t *testing.T) {
	saved := target
	t.Cleanup(func() { target = saved })

	target = targetSettings{}
	if _, err := requireScope(); err == nil {
		t.Error("expected error without a scope")
	}
	target.Scope = "Cherechiu"
	if got, err := requireScope(); err != nil || got != "Cherechiu" {
		t.Errorf("requireScope() = %q, %v", got, err)
	}
}

func TestRequireHTTP(t *testing.T) {
	saved := httpClient
	t.Cleanup(func() { httpClient = saved })

	httpClient = nil
	if _, err := requireHTTP(); err == nil {
		t.Error("expected error with the grpc transport")
	}
}
