package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorStringCarriesCodeAndContext(t *testing.T) {
	err := New(CodeMissingTitle, "record has no title").WithContext("source", "scraper")

	msg := err.Error()
	if !strings.Contains(msg, "E101") {
		t.Errorf("error string should contain the code: %s", msg)
	}
	if !strings.Contains(msg, "source=scraper") {
		t.Errorf("error string should contain context: %s", msg)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeStoreUnavailable, "redis write failed")

	if !errors.Is(err, cause) {
		t.Error("wrapped cause must be reachable via errors.Is")
	}
	if GetCode(err) != CodeStoreUnavailable {
		t.Errorf("code = %s", GetCode(err))
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if err := Wrap(nil, CodeUnknown, "nothing"); err != nil {
		t.Errorf("wrapping nil must stay nil, got %v", err)
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		code       Code
		validation bool
		retryable  bool
		conflict   bool
		fatal      bool
	}{
		{CodeMissingTitle, true, false, false, false},
		{CodeInvalidInput, true, false, false, false},
		{CodeStoreUnavailable, false, true, false, false},
		{CodeExternalCall, false, true, false, false},
		{CodeDuplicateKey, false, false, true, false},
		{CodePersistenceDown, false, false, false, true},
		{CodeCacheCorrupt, false, false, false, false},
	}
	for _, tc := range cases {
		err := New(tc.code, "x")
		if IsValidation(err) != tc.validation {
			t.Errorf("%s: IsValidation = %v", tc.code, IsValidation(err))
		}
		if IsRetryable(err) != tc.retryable {
			t.Errorf("%s: IsRetryable = %v", tc.code, IsRetryable(err))
		}
		if IsConflict(err) != tc.conflict {
			t.Errorf("%s: IsConflict = %v", tc.code, IsConflict(err))
		}
		if IsFatal(err) != tc.fatal {
			t.Errorf("%s: IsFatal = %v", tc.code, IsFatal(err))
		}
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	inner := DuplicateKey("abc123")
	outer := fmt.Errorf("upsert: %w", inner)

	if !IsConflict(outer) {
		t.Error("conflict classification must survive fmt.Errorf wrapping")
	}
}

func TestGetCodeOnForeignError(t *testing.T) {
	if got := GetCode(errors.New("plain")); got != CodeUnknown {
		t.Errorf("foreign errors map to CodeUnknown, got %s", got)
	}
}

func TestMultiError(t *testing.T) {
	var m MultiError
	if m.Combined() != nil {
		t.Error("empty MultiError combines to nil")
	}

	first := New(CodeExternalCall, "first")
	m.Add(first)
	m.Add(nil)
	if m.Combined() != first {
		t.Error("single error combines to itself")
	}

	m.Add(New(CodeStoreTimeout, "second"))
	combined := m.Combined()
	if combined == nil || !strings.Contains(combined.Error(), "2 errors") {
		t.Errorf("combined = %v", combined)
	}
}
