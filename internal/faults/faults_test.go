package faults

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(NotFound, "broadcast %d not found", 42)
	if KindOf(err) != NotFound {
		t.Errorf("Expected kind %s, got %s", NotFound, KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("Expected empty kind for untyped errors")
	}
	if KindOf(nil) != "" {
		t.Error("Expected empty kind for nil")
	}
}

func TestKindOfWrapped(t *testing.T) {
	inner := New(Expired, "broadcast window closed")
	outer := fmt.Errorf("decision rejected: %w", inner)
	if KindOf(outer) != Expired {
		t.Errorf("Expected kind to survive wrapping, got %s", KindOf(outer))
	}
	if !Is(outer, Expired) {
		t.Error("Expected Is to match through wrapping")
	}
	if Is(outer, NotFound) {
		t.Error("Expected Is to reject a different kind")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ProviderUnavailable, cause, "rpc call failed")
	if !errors.Is(err, cause) {
		t.Error("Expected the cause to unwrap")
	}
	if KindOf(err) != ProviderUnavailable {
		t.Errorf("Expected kind %s, got %s", ProviderUnavailable, KindOf(err))
	}
}

func TestErrorMessageIncludesFields(t *testing.T) {
	err := New(ValidationFailed, "missing required parameters").WithFields("asset", "amount")
	msg := err.Error()
	if !strings.Contains(msg, "asset") || !strings.Contains(msg, "amount") {
		t.Errorf("Expected field names in the message, got %q", msg)
	}
	if !strings.Contains(msg, string(ValidationFailed)) {
		t.Errorf("Expected the kind in the message, got %q", msg)
	}
}
