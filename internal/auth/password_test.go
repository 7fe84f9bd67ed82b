package auth

import (
	"strings"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "valid", raw: "Alice@Example.com", want: "alice@example.com"},
		{name: "trim", raw: "  bob@example.org  ", want: "bob@example.org"},
		{name: "display name", raw: "Bob <bob@example.org>", wantErr: true},
		{name: "no domain dot", raw: "root@localhost", wantErr: true},
		{name: "no at", raw: "alice.example.com", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEmail(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeEmail(%q)=%q want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("short"); err == nil {
		t.Fatal("expected error for short password")
	}
	if err := ValidatePassword(strings.Repeat("x", 73)); err == nil {
		t.Fatal("expected error for over-long password")
	}
	if err := ValidatePassword("password-123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("password-123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !VerifyPassword(hash, "password-123") {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("expected wrong password to fail")
	}
	if VerifyPassword("", "password-123") {
		t.Fatal("expected empty hash to fail")
	}
}
