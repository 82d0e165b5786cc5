package services_test

import (
	"errors"
	"strings"
	"testing"

	"astrodriz/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "drizzle", "combine", "engine exited", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"drizzle", "combine", "engine exited"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutBaseError(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "intake", "resolve", "no calibrated files", nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	if strings.Contains(err.Error(), "%!") {
		t.Fatalf("unexpected formatting artifact in %q", err.Error())
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "staging", "copy", "copy failed", errors.New("io"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestIsFatalConfiguration(t *testing.T) {
	cfgErr := services.Wrap(services.ErrConfiguration, "config", "env", "bad value", nil)
	if !services.IsFatalConfiguration(cfgErr) {
		t.Fatalf("expected configuration error to be fatal: %v", cfgErr)
	}
	toolErr := services.Wrap(services.ErrExternalTool, "aligner", "fit", "exit 1", nil)
	if services.IsFatalConfiguration(toolErr) {
		t.Fatalf("tool error should not be fatal configuration: %v", toolErr)
	}
}
