package dmxconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miren.dev/dmx"
	"miren.dev/dmx/dmxconfig"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "empty config defaults to automatic",
			config:  "",
			wantErr: "",
		},
		{
			name: "explicit always mode",
			config: `
deferred_mode = "always"
`,
			wantErr: "",
		},
		{
			name: "codec default",
			config: `
[[codec_defaults]]
encoding = "binary"
version = 5
`,
			wantErr: "",
		},
		{
			name: "unrecognized deferred mode",
			config: `
deferred_mode = "eventually"
`,
			wantErr: "unrecognized value",
		},
		{
			name: "codec default missing encoding",
			config: `
[[codec_defaults]]
version = 5
`,
			wantErr: "encoding is required",
		},
		{
			name: "codec default non-positive version",
			config: `
[[codec_defaults]]
encoding = "binary"
version = 0
`,
			wantErr: "must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := dmxconfig.Parse([]byte(tt.config))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
		})
	}
}

func TestResolveDeferredModeDefaultsToAutomatic(t *testing.T) {
	cfg, err := dmxconfig.Parse(nil)
	require.NoError(t, err)

	mode, err := cfg.ResolveDeferredMode()
	require.NoError(t, err)
	assert.Equal(t, dmx.DeferredAutomatic, mode)
}

func TestPreferredVersion(t *testing.T) {
	cfg, err := dmxconfig.Parse([]byte(`
[[codec_defaults]]
encoding = "binary"
version = 5

[[codec_defaults]]
encoding = "keyvalues2"
version = 1
`))
	require.NoError(t, err)

	v, ok := cfg.PreferredVersion("binary")
	require.True(t, ok)
	assert.Equal(t, 5, v)

	_, ok = cfg.PreferredVersion("nope")
	assert.False(t, ok)
}
