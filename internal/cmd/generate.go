package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/Alia5/aotkit/internal/codegen/generator"
)

type Generate struct {
	Source `embed:""`

	Output         []string `help:"Outputs to write: go, manifest (default all)" env:"AOTKIT_GENERATE_OUTPUT"`
	ManifestFormat string   `help:"Preserve manifest format" enum:"json,yaml,toml" default:"json" env:"AOTKIT_MANIFEST_FORMAT"`
}

// Run is called by Kong when the generate command is executed.
func (g *Generate) Run(logger *slog.Logger) error {
	logger.Info("Starting aotkit code generation", "dir", g.Dir, "patterns", g.Patterns)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gen := generator.New(generator.Options{
		Dir:            g.Dir,
		Patterns:       g.Patterns,
		Outputs:        g.Output,
		ManifestFormat: g.ManifestFormat,
		Scan:           g.scanOptions(),
	}, logger)
	_, err := gen.GenAll(ctx)
	return err
}
