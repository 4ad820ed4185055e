// Package generator drives discovery and writes the generated artifacts of
// every package that declares endpoints, commands or events.
package generator

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Alia5/aotkit/internal/codegen/collector"
	"github.com/Alia5/aotkit/internal/codegen/common"
	"github.com/Alia5/aotkit/internal/codegen/generator/golang"
	"github.com/Alia5/aotkit/internal/codegen/generator/manifest"
	"github.com/Alia5/aotkit/internal/codegen/meta"
	"github.com/Alia5/aotkit/internal/codegen/scanner"
	aotlog "github.com/Alia5/aotkit/internal/log"
)

// ErrStale is returned by Verify when a generated file is missing or out of
// date.
var ErrStale = errors.New("generated code is stale")

// Options configures a Generator.
type Options struct {
	// Dir is the directory patterns are resolved against.
	Dir      string
	Patterns []string
	// Outputs selects the writers to run; empty means all of them.
	Outputs []string
	// ManifestFormat is json, yaml or toml.
	ManifestFormat string
	Scan           scanner.Options
}

type Generator struct {
	opts   Options
	logger *slog.Logger
}

type LanguageGenerator func(logger *slog.Logger, outputDir string, md *meta.Metadata) error

func New(opts Options, logger *slog.Logger) *Generator {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.ManifestFormat == "" {
		opts.ManifestFormat = "json"
	}
	if opts.Scan.EndpointType == "" {
		opts.Scan = scanner.DefaultOptions()
	}
	return &Generator{
		opts:   opts,
		logger: logger,
	}
}

func (g *Generator) generators() map[string]LanguageGenerator {
	return map[string]LanguageGenerator{
		"go":       golang.Generate,
		"manifest": manifest.Writer{Format: g.opts.ManifestFormat}.Generate,
	}
}

// Outputs lists the supported writer names.
func Outputs() []string {
	out := make([]string, 0, 2)
	for k := range (&Generator{}).generators() {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GenAll scans and writes every selected output for every package with
// something to generate.
func (g *Generator) GenAll(ctx context.Context) ([]*meta.Metadata, error) {
	gens, err := g.selected()
	if err != nil {
		return nil, err
	}
	mds, err := g.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, md := range mds {
		for _, name := range sortedKeys(gens) {
			g.logger.Debug("Generating", "output", name, "package", md.Package)
			if err := gens[name](g.logger, md.Dir, md); err != nil {
				return nil, fmt.Errorf("generate %s for %s: %w", name, md.Package, err)
			}
		}
		g.logger.Info("Generated package",
			"package", md.Package,
			"types", len(md.Types),
			"commands", len(md.Commands),
			"events", len(md.Events))
	}
	g.logger.Info("Code generation complete", "packages", len(mds))
	return mds, nil
}

func (g *Generator) selected() (map[string]LanguageGenerator, error) {
	all := g.generators()
	if len(g.opts.Outputs) == 0 {
		return all, nil
	}
	out := make(map[string]LanguageGenerator, len(g.opts.Outputs))
	for _, name := range g.opts.Outputs {
		gen, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("unsupported output '%s' (supported: %v)", name, Outputs())
		}
		out[name] = gen
	}
	return out, nil
}

// ScanAll loads, scans and collects every package matching the patterns.
// Packages with nothing to generate are left out.
func (g *Generator) ScanAll(ctx context.Context) ([]*meta.Metadata, error) {
	g.logger.Info("Scanning codebase for metadata", "dir", g.opts.Dir, "patterns", g.opts.Patterns)

	pkgs, err := scanner.Load(ctx, g.opts.Dir, g.opts.Patterns...)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("Loaded packages", "count", len(pkgs))

	results, err := scanner.Scan(pkgs, g.opts.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to scan packages: %w", err)
	}

	var mds []*meta.Metadata
	for _, res := range results {
		if res.Empty() {
			continue
		}
		md, err := meta.New(res, collector.Options{Blacklist: g.opts.Scan.Blacklist})
		if err != nil {
			return nil, err
		}
		for _, td := range md.Types {
			g.logger.Log(ctx, aotlog.LevelTrace, "Collected type",
				"type", td.Identity,
				"properties", len(td.Properties),
				"constructorArgs", td.ConstructorArgumentCount)
		}
		g.logger.Info("Found package",
			"package", md.Package,
			"endpoints", len(res.Endpoints),
			"commands", len(res.Commands),
			"openCommands", len(res.OpenCommands),
			"events", len(res.Events))
		mds = append(mds, md)
	}
	return mds, nil
}

// Stale describes a package whose generated file does not match the scan.
type Stale struct {
	Package string
	Path    string
	Want    string
	Got     string
}

// Verify scans without writing and reports packages whose generated file is
// missing or carries a different fingerprint. The error wraps ErrStale when
// anything is out of date.
func (g *Generator) Verify(ctx context.Context) ([]Stale, error) {
	mds, err := g.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	var stale []Stale
	for _, md := range mds {
		path := filepath.Join(md.Dir, golang.FileName)
		got, err := ReadFingerprint(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if got != md.Fingerprint {
			stale = append(stale, Stale{Package: md.Package, Path: path, Want: md.Fingerprint, Got: got})
		}
	}
	if len(stale) > 0 {
		return stale, fmt.Errorf("%w: %d package(s)", ErrStale, len(stale))
	}
	return nil, nil
}

// ReadFingerprint returns the fingerprint recorded in a generated file, or
// "" if it has none.
func ReadFingerprint(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "package ") {
			break
		}
		if fp, ok := strings.CutPrefix(line, common.FingerprintPrefix); ok {
			return strings.TrimSpace(fp), nil
		}
	}
	return "", sc.Err()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
