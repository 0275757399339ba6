package cleaner

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	for _, tc := range []struct {
		err      error
		expected bool
	}{
		{ErrRepositoryUnknown{Name: "app"}, true},
		{ErrTagUnknown{Repository: "app", Tag: "v1"}, true},
		{fmt.Errorf("deleting tag: %w", ErrTagUnknown{Repository: "app", Tag: "v1"}), true},
		{ErrRepositoryNameInvalid{Name: "APP", Reason: errors.New("uppercase")}, false},
		{errors.New("disk on fire"), false},
		{nil, false},
	} {
		if actual := IsNotFound(tc.err); actual != tc.expected {
			t.Errorf("IsNotFound(%v) = %v, expected %v", tc.err, actual, tc.expected)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	if msg := (ErrTagUnknown{Repository: "app", Tag: "v1"}).Error(); msg != "unknown tag=app:v1" {
		t.Fatalf("unexpected message: %q", msg)
	}
	reason := errors.New("bad")
	err := ErrTagInvalid{Tag: "-x", Reason: reason}
	if !errors.Is(err, reason) {
		t.Fatalf("expected %v to unwrap to its reason", err)
	}
}
