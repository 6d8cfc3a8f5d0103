package sentinel

import (
	"errors"
	"testing"
)

func TestErrLLM(t *testing.T) {
	err := &ErrLLM{Provider: "gemini", Message: "rate limited"}
	if err.Error() != "gemini: rate limited" {
		t.Errorf("Error() = %q", err.Error())
	}

	var target *ErrLLM
	if !errors.As(error(err), &target) {
		t.Error("errors.As failed")
	}
}

func TestErrHTTP(t *testing.T) {
	err := &ErrHTTP{Status: 429, Body: "too many requests"}
	if err.Error() != "http 429: too many requests" {
		t.Errorf("Error() = %q", err.Error())
	}

	wrapped := errors.Join(errors.New("outer"), err)
	var target *ErrHTTP
	if !errors.As(wrapped, &target) {
		t.Error("errors.As failed through join")
	}
	if target.Status != 429 {
		t.Errorf("Status = %d", target.Status)
	}
}
