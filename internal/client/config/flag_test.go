package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected *Config
		name     string
		args     []string
		wantErr  bool
	}{
		{name: "all flags", args: []string{"-a", "http://sync.example:9090", "-f", "/tmp/j.db", "-l", "/tmp/j.log", "-i", "10"},
			expected: &Config{ServerURL: "http://sync.example:9090", DatabasePath: "/tmp/j.db", LogFile: "/tmp/j.log", RequestTimeout: 10 * time.Second}},
		{name: "subcommand and unknown flags ignored", args: []string{"journal", "add", "--title", "x", "-i", "5"},
			expected: &Config{RequestTimeout: 5 * time.Second}},
		{name: "incorrect timeout", args: []string{"-i", "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			err := parseFlags(config, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
