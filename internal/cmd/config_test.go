package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pelletier/go-toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTemplateGenerate(t *testing.T) {
	root, err := Template("generate")
	require.NoError(t, err)

	assert.Equal(t, ".", root["dir"])
	assert.Equal(t, []string{}, root["blacklist"])
	assert.Equal(t, []string{}, root["output"])
	assert.Equal(t, "json", root["manifest_format"])
	assert.NotContains(t, root, "patterns", "positional arguments are not configurable")

	log, ok := root["log"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "info", log["level"])
	assert.Equal(t, "auto", log["format"])
	assert.Equal(t, "", log["file"])
}

func TestTemplateSkipsNonFlags(t *testing.T) {
	root, err := Template("inspect")
	require.NoError(t, err)
	assert.Equal(t, "text", root["format"])
	assert.NotContains(t, root, "out")

	_, err = Template("serve")
	assert.Error(t, err)
}

func TestConfigKey(t *testing.T) {
	type sample struct {
		ManifestFormat string
		Dir            string
		ConfigFile     string `name:"config"`
		HTTPAddr       string
		LogFile        string `name:"log-file"`
	}
	st := reflect.TypeOf(sample{})
	want := []string{"manifest_format", "dir", "config", "http_addr", "log_file"}
	for i, key := range want {
		assert.Equal(t, key, configKey(st.Field(i)))
	}
}

func TestConfigInitFormats(t *testing.T) {
	decoders := map[string]func([]byte, any) error{
		"json": json.Unmarshal,
		"yml":  yaml.Unmarshal,
		"toml": toml.Unmarshal,
	}
	for format, decode := range decoders {
		t.Run(format, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "nested", "aotkit."+format)
			c := &ConfigInit{Command: "verify", Format: format, Output: dest}
			require.NoError(t, c.Run())

			data, err := os.ReadFile(dest)
			require.NoError(t, err)
			var got map[string]any
			require.NoError(t, decode(data, &got))
			assert.Equal(t, ".", got["dir"])
			assert.Contains(t, got, "log")

			assert.Error(t, c.Run(), "existing files need --force")
			c.Force = true
			assert.NoError(t, c.Run())
		})
	}
}

func TestConfigInitRejectsFormat(t *testing.T) {
	c := &ConfigInit{Command: "generate", Format: "ini", Output: filepath.Join(t.TempDir(), "x")}
	assert.Error(t, c.Run())
}
