package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	client := NewSaferClient(30 * time.Second)

	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{name: "https allowed", url: "https://example.com/avatar.png"},
		{name: "http allowed", url: "http://example.com"},
		{name: "file scheme blocked", url: "file:///etc/passwd", errContains: "scheme"},
		{name: "ftp scheme blocked", url: "ftp://example.com", errContains: "scheme"},
		{name: "localhost blocked", url: "http://localhost/x", errContains: "localhost"},
		{name: "localhost subdomain blocked", url: "http://evil.localhost/x", errContains: "localhost"},
		{name: "loopback IP blocked", url: "http://127.0.0.1/x", errContains: "private IP"},
		{name: "rfc1918 blocked", url: "http://192.168.1.1/x", errContains: "private IP"},
		{name: "link-local blocked", url: "http://169.254.169.254/meta", errContains: "private IP"},
		{name: "credential confusion blocked", url: "http://evil.com@localhost/", errContains: "@"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if tt.errContains == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			}
		})
	}
}

func TestIsPrivateIPv6(t *testing.T) {
	client := NewSaferClient(time.Second)

	for _, blocked := range []string{
		"http://[::1]/x",
		"http://[fc00::1]/x",
		"http://[fe80::1]/x",
		"http://[2001:db8::1]/x",
	} {
		_, err := client.ValidateURL(blocked)
		assert.Error(t, err, blocked)
	}

	_, err := client.ValidateURL("http://[2607:f8b0::1]/x")
	assert.NoError(t, err, "public IPv6 passes validation")
}

func TestWrapClientAllowsLoopback(t *testing.T) {
	client := WrapClient(&http.Client{Timeout: time.Second})

	_, err := client.ValidateURL("http://127.0.0.1:8080/x")
	assert.NoError(t, err)
}
