package casierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationErrorUnwraps(t *testing.T) {
	err := Invalid("prompt", "must be at most %d characters", 1000)

	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected errors.Is(err, ErrValidation)")
	}
	if err.Error() != "prompt: must be at most 1000 characters" {
		t.Errorf("unexpected message %q", err.Error())
	}

	wrapped := fmt.Errorf("generate: %w", err)
	var ve *ValidationError
	if !errors.As(wrapped, &ve) {
		t.Fatal("expected errors.As to find ValidationError")
	}
	if ve.Field != "prompt" {
		t.Errorf("expected field prompt, got %q", ve.Field)
	}
}
