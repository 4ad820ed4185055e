package scanner

import (
	"context"
	"fmt"
	"go/types"
	"slices"
	"strings"

	"golang.org/x/tools/go/packages"
)

// BuildTag is set while loading so that existing generated files, which
// carry the negated constraint, are not type-checked against stale types.
const BuildTag = "aotkit_generate"

// generatedSymbols are declared only in generated files. Host packages that
// call them fail to type-check under BuildTag, which is expected.
var generatedSymbols = []string{"Populate"}

// Package is one type-checked package to scan.
type Package struct {
	Types *types.Package
	Info  *types.Info
	// Dir is where the generated file is written.
	Dir string
}

// Load type-checks the packages matching patterns, relative to dir.
func Load(ctx context.Context, dir string, patterns ...string) ([]Package, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	cfg := &packages.Config{
		Context: ctx,
		Dir:     dir,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
			packages.NeedTypes | packages.NeedTypesInfo | packages.NeedImports | packages.NeedDeps,
		BuildFlags: []string{"-tags=" + BuildTag},
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	var errs []string
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			if isGeneratedSymbolError(e) {
				continue
			}
			errs = append(errs, e.Error())
		}
	})
	if len(errs) > 0 {
		return nil, fmt.Errorf("load packages: %s", strings.Join(errs, "; "))
	}

	out := make([]Package, 0, len(pkgs))
	for _, p := range pkgs {
		if p.Types == nil || len(p.GoFiles) == 0 {
			continue
		}
		out = append(out, Package{
			Types: p.Types,
			Info:  p.TypesInfo,
			Dir:   packageDir(p),
		})
	}
	return out, nil
}

func isGeneratedSymbolError(e packages.Error) bool {
	if e.Kind != packages.TypeError {
		return false
	}
	name, ok := strings.CutPrefix(e.Msg, "undefined: ")
	if !ok {
		return false
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return slices.Contains(generatedSymbols, name)
}

func packageDir(p *packages.Package) string {
	if p.Dir != "" {
		return p.Dir
	}
	f := p.GoFiles[0]
	if i := strings.LastIndexAny(f, `/\`); i >= 0 {
		return f[:i]
	}
	return "."
}
