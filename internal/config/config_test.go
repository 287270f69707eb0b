package config

import (
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSubjectFor(t *testing.T) {
	cfg := Default()
	got := cfg.SubjectFor("In Process: Jordan Casey has been submitted")
	if got != "In/Out Process - In Process: Jordan Casey has been submitted" {
		t.Fatalf("unexpected subject %q", got)
	}
	cfg.App.TestMode = true
	if got := cfg.SubjectFor("x"); !strings.HasPrefix(got, "TEST - ") {
		t.Fatalf("test mode subject %q", got)
	}
}

func TestFromYAMLMergesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("app:\n  base_url: https://inproc.example.mil\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.App.BaseURL != "https://inproc.example.mil" {
		t.Fatalf("base_url not applied: %+v", cfg.App)
	}
	if cfg.Email.SubjectPrefix != "In/Out Process - " {
		t.Fatalf("defaults not merged: %+v", cfg.Email)
	}
}

func TestFromYAMLRejectsBadBaseURL(t *testing.T) {
	if _, err := FromYAML([]byte("app:\n  base_url: not-a-url\n")); err == nil {
		t.Fatalf("expected validation error")
	}
}
