package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("CVISION_BFF_API_BASE", "https://bff.example.com/")
	t.Setenv("MANAGE_CV_API_BASE", "https://manage.example.com")
	t.Setenv("POLL_INTERVAL", "3000")
	t.Setenv("POLL_TIMEOUT", "90s")
	t.Setenv("POLL_MAX_ATTEMPTS", "-4")
	t.Setenv("POLL_RATE_PER_SEC", "0")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example.com, ,https://b.example.com")

	a, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.CVisionBaseURL != "https://bff.example.com" {
		t.Errorf("CVisionBaseURL = %q, want trailing slash trimmed", a.CVisionBaseURL)
	}
	if a.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v", a.PollInterval)
	}
	if a.PollTimeout != 90*time.Second {
		t.Errorf("PollTimeout = %v", a.PollTimeout)
	}
	if a.PollMaxAttempts != 200 {
		t.Errorf("PollMaxAttempts = %d, want default for invalid value", a.PollMaxAttempts)
	}
	if a.PollRatePerSec != 0 {
		t.Errorf("PollRatePerSec = %v, want 0 (disabled)", a.PollRatePerSec)
	}
	if want := []string{"https://a.example.com", "https://b.example.com"}; !reflect.DeepEqual(a.CORSAllowOrigins, want) {
		t.Errorf("CORSAllowOrigins = %v", a.CORSAllowOrigins)
	}
	if a.ProfileCache != "redis" {
		t.Errorf("ProfileCache = %q, want redis by default", a.ProfileCache)
	}
}

func TestLoadRequiresAPIBases(t *testing.T) {
	t.Setenv("CVISION_BFF_API_BASE", "")
	t.Setenv("MANAGE_CV_API_BASE", "https://manage.example.com")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without CVISION_BFF_API_BASE")
	}
}
