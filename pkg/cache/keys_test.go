package cache

import (
	"strings"
	"testing"
)

func TestNormalizeCategory(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"techno", "DJ Sets/Electronic"},
		{"TECHNO", "DJ Sets/Electronic"},
		{"  Clubs-Discos ", "Clubs/Discos"},
		{"clubs/discos", "Clubs/Discos"},
		{"Konzerte", "Live Music"},
		{"bars", "Bars"},
		{"Opera Gala", "Opera Gala"}, // unknown passes through
		{"", ""},
	}

	for _, tc := range cases {
		if got := NormalizeCategory(tc.in); got != tc.want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCreateKeyFormat(t *testing.T) {
	key := CreateKey("Wien", "2025-09-02", nil)
	if key != "wien_2025-09-02_all" {
		t.Errorf("unexpected key %q", key)
	}

	key = CreateKey("Wien", "2025-09-02", []string{"techno"})
	if key != "wien_2025-09-02_DJ Sets/Electronic" {
		t.Errorf("unexpected key %q", key)
	}
}

func TestCreateKeyCaseInsensitiveCity(t *testing.T) {
	if CreateKey("WIEN", "2025-09-02", nil) != CreateKey("wien", "2025-09-02", nil) {
		t.Error("keys should be equal regardless of city case")
	}
}

func TestCreateKeyOrderInvariant(t *testing.T) {
	a := CreateKey("Wien", "2025-09-02", []string{"Bars", "Clubs/Discos"})
	b := CreateKey("Wien", "2025-09-02", []string{"Clubs/Discos", "Bars"})
	if a != b {
		t.Errorf("category order changed the key: %q vs %q", a, b)
	}
}

func TestCreateKeyForCategoryAgreesWithCreateKey(t *testing.T) {
	for _, cat := range []string{"Clubs/Discos", "techno", "Opera Gala"} {
		single := CreateKeyForCategory("Wien", "2025-09-02", cat)
		list := CreateKey("Wien", "2025-09-02", []string{cat})
		if single != list {
			t.Errorf("category %q: single-key %q != list-key %q", cat, single, list)
		}
	}
}

func TestParseKeyRoundTrip(t *testing.T) {
	key := CreateKey("Wien", "2025-09-02", []string{"Bars", "Clubs/Discos"})
	parsed, err := ParseKey(key)
	if err != nil {
		t.Fatalf("ParseKey(%q): %v", key, err)
	}
	if parsed.City != "wien" || parsed.Date != "2025-09-02" {
		t.Errorf("parsed %+v", parsed)
	}
	if len(parsed.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %v", parsed.Categories)
	}
	if parsed.Encode() != key {
		t.Errorf("round trip changed key: %q -> %q", key, parsed.Encode())
	}
}

func TestParseKeyCityWithUnderscores(t *testing.T) {
	key := CreateKey("New_York", "2025-09-02", nil)
	parsed, err := ParseKey(key)
	if err != nil {
		t.Fatalf("ParseKey(%q): %v", key, err)
	}
	if parsed.City != "new_york" {
		t.Errorf("expected city new_york, got %q", parsed.City)
	}
	if parsed.Categories != nil {
		t.Errorf("expected nil categories for sentinel, got %v", parsed.Categories)
	}
}

func TestParseKeyMalformed(t *testing.T) {
	for _, key := range []string{"", "wien", "wien_notadate_all"} {
		if _, err := ParseKey(key); err == nil {
			t.Errorf("ParseKey(%q) should fail", key)
		}
	}
}

func TestCreateKeyAllSentinel(t *testing.T) {
	key := CreateKey("Wien", "2025-09-02", []string{})
	if !strings.HasSuffix(key, "_all") {
		t.Errorf("empty categories should collapse to sentinel, got %q", key)
	}
}
