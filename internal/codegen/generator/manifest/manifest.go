// Package manifest writes the list of type identities a dead code
// elimination step has to keep.
package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Alia5/aotkit/internal/codegen/common"
	"github.com/Alia5/aotkit/internal/codegen/meta"
)

// BaseName is the manifest file name without extension.
const BaseName = "aot.preserve"

// Manifest is the serialized preserve list.
type Manifest struct {
	Package     string   `json:"package" yaml:"package" toml:"package"`
	Fingerprint string   `json:"fingerprint" yaml:"fingerprint" toml:"fingerprint"`
	Generator   string   `json:"generator" yaml:"generator" toml:"generator"`
	Preserve    []string `json:"preserve" yaml:"preserve" toml:"preserve"`
}

// FromMetadata builds the manifest of one package.
func FromMetadata(md *meta.Metadata) (Manifest, error) {
	version, err := common.GetVersion()
	if err != nil {
		return Manifest{}, fmt.Errorf("get version: %w", err)
	}
	preserve := md.Preserve
	if preserve == nil {
		preserve = []string{}
	}
	return Manifest{
		Package:     md.Package,
		Fingerprint: md.Fingerprint,
		Generator:   "aotkit " + version,
		Preserve:    preserve,
	}, nil
}

// Writer writes manifests in one format.
type Writer struct {
	Format string
}

// FileName returns the manifest file name for the writer's format.
func (w Writer) FileName() (string, error) {
	ext, err := common.Extension(w.Format)
	if err != nil {
		return "", err
	}
	return BaseName + ext, nil
}

// Generate writes the manifest into outputDir.
func (w Writer) Generate(logger *slog.Logger, outputDir string, md *meta.Metadata) error {
	name, err := w.FileName()
	if err != nil {
		return err
	}
	m, err := FromMetadata(md)
	if err != nil {
		return err
	}
	data, err := common.Marshal(w.Format, m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	logger.Debug("Generated preserve manifest", "path", path, "types", len(m.Preserve))
	return nil
}
