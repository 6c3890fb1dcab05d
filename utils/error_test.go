package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusError(t *testing.T) {
	cause := errors.New("unauthorized")
	err := NewStatusError(cause, http.StatusUnauthorized)

	wrapped := fmt.Errorf("authenticate: %w", err)

	var se StatusError
	if !errors.As(wrapped, &se) {
		t.Fatalf("expected a StatusError in the chain")
	}
	if se.Status() != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, se.Status())
	}
	if se.Error() != "unauthorized" {
		t.Fatalf("expected message %q, got %q", "unauthorized", se.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected the cause to be in the chain")
	}
}

func TestStatusCode(t *testing.T) {
	t.Run("status error in chain", func(t *testing.T) {
		err := fmt.Errorf("decode: %w", NewStatusError(errors.New("too large"), http.StatusRequestEntityTooLarge))
		if got := StatusCode(err, http.StatusInternalServerError); got != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, got)
		}
	})

	t.Run("plain error uses fallback", func(t *testing.T) {
		if got := StatusCode(errors.New("boom"), http.StatusInternalServerError); got != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, got)
		}
	})
}
