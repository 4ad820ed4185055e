package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"github.com/Alia5/aotkit/internal/codegen/generator"
)

type Verify struct {
	Source `embed:""`

	Out io.Writer `kong:"-"`
}

// Run is called by Kong when the verify command is executed. It returns
// generator.ErrStale when any package needs regenerating.
func (c *Verify) Run(logger *slog.Logger) error {
	gen := generator.New(generator.Options{
		Dir:      c.Dir,
		Patterns: c.Patterns,
		Scan:     c.scanOptions(),
	}, logger)
	stale, err := gen.Verify(context.Background())
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	WriteStale(out, stale)
	return err
}

// WriteStale lists stale packages, or a success line when there are none.
func WriteStale(w io.Writer, stale []generator.Stale) {
	if len(stale) == 0 {
		color.New(color.FgGreen).Fprintln(w, "generated code is up to date")
		return
	}
	red := color.New(color.FgRed, color.Bold)
	gray := color.New(color.FgHiBlack)
	for _, s := range stale {
		red.Fprintf(w, "stale: %s\n", s.Package)
		if s.Got == "" {
			gray.Fprintf(w, "  %s is missing or has no fingerprint\n", s.Path)
			continue
		}
		gray.Fprintf(w, "  %s: have %s, want %s\n", s.Path, shortFingerprint(s.Got), shortFingerprint(s.Want))
	}
	fmt.Fprintln(w, "run `aotkit generate` to update")
}
