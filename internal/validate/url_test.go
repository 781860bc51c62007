package validate

import (
	"errors"
	"strings"
	"testing"
)

func TestConferenceURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"https", "https://meet.example/spring", "https://meet.example/spring", nil},
		{"http with port", " http://meet.example:8080/room?id=1 ", "http://meet.example:8080/room?id=1", nil},
		{"public ip", "https://203.0.113.5/room", "https://203.0.113.5/room", nil},
		{"empty", "", "", ErrEmpty},
		{"ftp scheme", "ftp://meet.example/room", "", ErrDisallowedScheme},
		{"javascript", "javascript:alert(1)", "", ErrDisallowedScheme},
		{"no host", "https:///room", "", ErrInvalidURL},
		{"unparseable", "https://meet.example/%zz", "", ErrInvalidURL},
		{"localhost", "http://localhost:3000", "", ErrPrivateHost},
		{"localhost subdomain", "http://app.localhost/", "", ErrPrivateHost},
		{"loopback", "http://127.0.0.1/", "", ErrPrivateHost},
		{"private ipv4", "http://192.168.1.10/", "", ErrPrivateHost},
		{"link local", "http://169.254.169.254/latest/meta-data", "", ErrPrivateHost},
		{"ipv6 loopback", "http://[::1]/", "", ErrPrivateHost},
		{"ipv6 unique local", "http://[fd00::1]/", "", ErrPrivateHost},
		{"too long", "https://meet.example/" + strings.Repeat("a", 2048), "", ErrStringTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConferenceURL(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ConferenceURL(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ConferenceURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestURL_AnyScheme(t *testing.T) {
	if _, err := URL("ws://meet.example/socket", URLConstraints{}); err != nil {
		t.Errorf("URL() with no constraints error = %v", err)
	}
	if _, err := URL("http://10.0.0.1/", URLConstraints{}); err != nil {
		t.Errorf("URL() without BlockPrivate error = %v", err)
	}
}
