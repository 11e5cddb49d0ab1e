package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAllowedOrigins(t *testing.T) {
	t.Run("defaults when unset", func(t *testing.T) {
		assert.Equal(t, []string{"http://localhost:3000"}, ParseAllowedOrigins(""))
	})

	t.Run("splits and trims", func(t *testing.T) {
		got := ParseAllowedOrigins("https://a.example, https://b.example ,")
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, got)
	})
}

func TestValidateOrigin(t *testing.T) {
	allowed := []string{"http://localhost:3000", "https://watch.example.com"}

	tests := []struct {
		name    string
		origin  string
		wantErr bool
	}{
		{"exact match", "http://localhost:3000", false},
		{"second allowed origin", "https://watch.example.com", false},
		{"no origin header passes non-browser clients", "", false},
		{"different port", "http://localhost:4000", true},
		{"different scheme", "https://localhost:3000", true},
		{"different host", "http://attacker.example", true},
		{"subdomain of allowed host", "https://evil.watch.example.com", true},
		{"allowed host as prefix", "https://watch.example.com.attacker.net", true},
		{"opaque null origin", "null", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/websocket/GZ4KQ", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			err := validateOrigin(req, allowed)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOrigin_MalformedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/websocket/GZ4KQ", nil)
	req.Header.Set("Origin", "://missing-scheme")

	assert.Error(t, validateOrigin(req, []string{"http://localhost:3000"}))
}

func TestValidateOrigin_SkipsMalformedAllowedEntry(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/websocket/GZ4KQ", nil)
	req.Header.Set("Origin", "https://watch.example.com")

	allowed := []string{"://broken", "https://watch.example.com"}
	assert.NoError(t, validateOrigin(req, allowed))
}
