package manifest_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Alia5/aotkit/internal/codegen/generator/manifest"
	"github.com/Alia5/aotkit/internal/codegen/meta"
)

func sample() *meta.Metadata {
	return &meta.Metadata{
		Package:     "example.com/shop",
		Fingerprint: "abc123",
		Preserve:    []string{"example.com/shop.Order", "example.com/shop.OrderHandler"},
	}
}

func TestFileName(t *testing.T) {
	name, err := manifest.Writer{Format: "yaml"}.FileName()
	require.NoError(t, err)
	assert.Equal(t, "aot.preserve.yaml", name)

	_, err = manifest.Writer{Format: "xml"}.FileName()
	assert.Error(t, err)
}

func TestGenerateFormats(t *testing.T) {
	decoders := map[string]func([]byte, any) error{
		"json": json.Unmarshal,
		"yaml": yaml.Unmarshal,
		"toml": toml.Unmarshal,
	}
	logger := slog.New(slog.DiscardHandler)
	for format, decode := range decoders {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()
			w := manifest.Writer{Format: format}
			require.NoError(t, w.Generate(logger, dir, sample()))

			name, err := w.FileName()
			require.NoError(t, err)
			data, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)

			var got manifest.Manifest
			require.NoError(t, decode(data, &got))
			assert.Equal(t, "example.com/shop", got.Package)
			assert.Equal(t, "abc123", got.Fingerprint)
			assert.Equal(t, sample().Preserve, got.Preserve)
			assert.Contains(t, got.Generator, "aotkit ")
		})
	}
}

func TestFromMetadataEmptyPreserve(t *testing.T) {
	m, err := manifest.FromMetadata(&meta.Metadata{Package: "example.com/empty"})
	require.NoError(t, err)
	assert.NotNil(t, m.Preserve)
	assert.Empty(t, m.Preserve)
}
