package configpaths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCandidatePathsRoutesUserPathByExtension(t *testing.T) {
	tests := []struct {
		path  string
		which string
	}{
		{"custom.json", "json"},
		{"custom.yaml", "yaml"},
		{"custom.yml", "yaml"},
		{"custom.toml", "toml"},
		{"custom.conf", "json"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			j, y, tm := ConfigCandidatePaths(tt.path)
			got := map[string][]string{"json": j, "yaml": y, "toml": tm}
			require.NotEmpty(t, got[tt.which])
			assert.Equal(t, tt.path, got[tt.which][0])
		})
	}
}

func TestConfigCandidatePathsIncludesConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("AppData", dir)

	j, _, _ := ConfigCandidatePaths("")
	assert.Contains(t, j, filepath.Join(dir, Name, "generate.json"))
}

func TestDefaultNamedConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("AppData", dir)

	p, err := DefaultNamedConfigPath("generate", "yml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, Name, "generate.yaml"), p)
}
