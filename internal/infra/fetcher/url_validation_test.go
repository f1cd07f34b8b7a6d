package fetcher

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		deny    bool
		wantErr error
	}{
		{"https ok", "https://example.com/feed", true, nil},
		{"ftp scheme", "ftp://example.com/feed", true, ErrInvalidURL},
		{"no host", "https:///feed", true, ErrInvalidURL},
		{"malformed", "://bad", true, ErrInvalidURL},
		{"loopback literal", "http://127.0.0.1/x", true, ErrPrivateIP},
		{"private literal", "http://10.1.2.3/x", true, ErrPrivateIP},
		{"metadata address", "http://169.254.169.254/latest", true, ErrPrivateIP},
		{"localhost", "http://LOCALHOST:8080/", true, ErrPrivateIP},
		{"ipv6 loopback", "http://[::1]/", true, ErrPrivateIP},
		{"private allowed when disabled", "http://127.0.0.1/x", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url, tt.deny)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, isPrivateIP(net.ParseIP("192.168.1.1")))
	assert.True(t, isPrivateIP(net.ParseIP("fe80::1")))
	assert.True(t, isPrivateIP(net.ParseIP("0.0.0.0")))
	assert.False(t, isPrivateIP(net.ParseIP("93.184.216.34")))
}
