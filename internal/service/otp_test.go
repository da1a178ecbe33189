package service

import (
	"strings"
	"testing"
)

func TestNormalizeEmailForKey(t *testing.T) {
	cases := []struct{ in, want string }{
		{"User@Example.com", "user@example.com"},
		{"  padded@mail.ru ", "padded@mail.ru"},
		// кириллические двойники заменяются латиницей
		{"асеr@mail.ru", "acer@mail.ru"},
	}
	for _, c := range cases {
		if got := normalizeEmailForKey(c.in); got != c.want {
			t.Errorf("normalizeEmailForKey(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestOnlyDigits(t *testing.T) {
	cases := []struct{ in, want string }{
		{"123456", "123456"},
		{"12 34 56", "123456"},
		{"1a2b3c", "123"},
		{"", ""},
	}
	for _, c := range cases {
		if got := onlyDigits(c.in); got != c.want {
			t.Errorf("onlyDigits(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestGenerateOTP(t *testing.T) {
	code := generateOTP(6)
	if len(code) != 6 {
		t.Fatalf("len = %d, want 6", len(code))
	}
	if onlyDigits(code) != code {
		t.Errorf("code %q contains non-digits", code)
	}
}

func TestDeriveName(t *testing.T) {
	if got := deriveName("ivan.petrov@uni.edu"); got != "ivan petrov" {
		t.Errorf("deriveName = %q, want %q", got, "ivan petrov")
	}
	if got := deriveName("noat"); !strings.HasPrefix(got, "user_") {
		t.Errorf("deriveName without @ = %q, want user_ prefix", got)
	}
}
