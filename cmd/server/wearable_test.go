package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedirect(t *testing.T) {
	tests := []struct {
		name  string
		input string
		state string
		code  string
		err   string
	}{
		{"full url", "http://localhost:8080/api/wearable/callback?code=abc&state=xyz\n", "xyz", "abc", ""},
		{"bare query", "?state=s1&code=c1", "s1", "c1", ""},
		{"query without mark", "state=s1&code=c1", "s1", "c1", ""},
		{"denied", "http://localhost/cb?error=access_denied&state=s1", "", "", "access_denied"},
		{"missing code", "http://localhost/cb?state=s1", "", "", "missing state or code"},
		{"empty", "  \n", "", "", "no redirect URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, code, err := parseRedirect(tt.input)
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.state, state)
			assert.Equal(t, tt.code, code)
		})
	}
}
