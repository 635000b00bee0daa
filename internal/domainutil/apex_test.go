package domainutil

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Example.COM", "example.com", false},
		{"  shop.example.com.  ", "shop.example.com", false},
		{"example.com:443", "example.com", false},
		{"xn--bcher-kva.example", "xn--bcher-kva.example", false},
		{"", "", true},
		{"localhost", "", true},
		{"192.168.1.1", "", true},
		{"[::1]", "", true},
		{"*.example.com", "", true},
		{"a..example.com", "", true},
		{"-bad.example.com", "", true},
		{"bad-.example.com", "", true},
		{"under_score.example.com", "", true},
		{strings.Repeat("a", 64) + ".com", "", true},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Normalize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEffectiveApex(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"www.example.com", "example.com"},
		{"a.b.example.co.uk", "example.co.uk"},
		{"example.com", "example.com"},
	}
	for _, tt := range tests {
		got, err := EffectiveApex(tt.in)
		if err != nil {
			t.Errorf("EffectiveApex(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("EffectiveApex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsApex(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"example.com", true},
		{"example.co.uk", true},
		{"www.example.com", false},
		{"shop.example.co.uk", false},
	}
	for _, tt := range tests {
		got, err := IsApex(tt.in)
		if err != nil {
			t.Errorf("IsApex(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("IsApex(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSubdomainHost(t *testing.T) {
	got, err := SubdomainHost("p-slug", "platform.example")
	if err != nil || got != "p-slug.platform.example" {
		t.Errorf("SubdomainHost() = %q, %v", got, err)
	}
	if _, err := SubdomainHost("bad slug", "platform.example"); err == nil {
		t.Error("SubdomainHost() with a space should fail")
	}
}

func TestIsUnder(t *testing.T) {
	if !IsUnder("acme.platform.example", "platform.example") {
		t.Error("subdomain should be under base")
	}
	if !IsUnder("platform.example.", "Platform.Example") {
		t.Error("base should be under itself")
	}
	if IsUnder("evilplatform.example", "platform.example") {
		t.Error("suffix match without dot must not count")
	}
}
