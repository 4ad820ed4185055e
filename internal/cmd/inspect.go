package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/Alia5/aotkit/internal/codegen/collector"
	"github.com/Alia5/aotkit/internal/codegen/common"
	"github.com/Alia5/aotkit/internal/codegen/generator"
	"github.com/Alia5/aotkit/internal/codegen/meta"
)

type Inspect struct {
	Source `embed:""`

	Format string    `help:"Output format" enum:"text,json,yaml,toml" default:"text" env:"AOTKIT_INSPECT_FORMAT"`
	Out    io.Writer `kong:"-"`
}

// Report is the structured inspect output.
type Report struct {
	Packages []*meta.Metadata `json:"packages" yaml:"packages" toml:"packages"`
}

// Run is called by Kong when the inspect command is executed.
func (c *Inspect) Run(logger *slog.Logger) error {
	gen := generator.New(generator.Options{
		Dir:      c.Dir,
		Patterns: c.Patterns,
		Scan:     c.scanOptions(),
	}, logger)
	mds, err := gen.ScanAll(context.Background())
	if err != nil {
		return err
	}
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	return WriteReport(out, c.Format, mds)
}

// WriteReport renders mds as colored text or in a serialization format.
func WriteReport(w io.Writer, format string, mds []*meta.Metadata) error {
	if format != "text" {
		if mds == nil {
			mds = []*meta.Metadata{}
		}
		data, err := common.Marshal(format, Report{Packages: mds})
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		_, err = w.Write(data)
		return err
	}

	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	section := color.New(color.FgYellow)

	if len(mds) == 0 {
		_, err := gray.Fprintln(w, "nothing to generate")
		return err
	}
	for _, md := range mds {
		bold.Fprintf(w, "%s", md.Package)
		gray.Fprintf(w, " (%s)\n", shortFingerprint(md.Fingerprint))

		section.Fprintf(w, "  types (%d)\n", len(md.Types))
		for _, d := range md.Types {
			fmt.Fprintf(w, "    %3d  %s", d.Alias, d.Identity)
			gray.Fprintf(w, "%s\n", typeFlags(d))
			for _, p := range d.Properties {
				fmt.Fprintf(w, "           %s %s", strings.Join(p.Path, "."), p.DeclaredType)
				gray.Fprintf(w, "%s\n", propFlags(p))
			}
		}

		if len(md.Commands) > 0 {
			section.Fprintf(w, "  commands (%d)\n", len(md.Commands))
			for _, c := range md.Commands {
				fmt.Fprintf(w, "    %s -> %s", c.Command, c.Result)
				gray.Fprintf(w, "  via %s\n", c.Handler)
			}
		}
		if len(md.Events) > 0 {
			section.Fprintf(w, "  events (%d)\n", len(md.Events))
			for _, e := range md.Events {
				fmt.Fprintf(w, "    %s", e.Event)
				gray.Fprintf(w, "  subscribers: %d\n", len(e.Subscribers))
				for _, s := range e.Subscribers {
					fmt.Fprintf(w, "      %s\n", s)
				}
			}
		}
		if len(md.Endpoints) > 0 {
			section.Fprintf(w, "  endpoints (%d)\n", len(md.Endpoints))
			for _, e := range md.Endpoints {
				fmt.Fprintf(w, "    %s\n", e)
			}
		}
	}
	return nil
}

func typeFlags(d *collector.TypeDescriptor) string {
	var flags []string
	if d.IsValueType {
		flags = append(flags, "value")
	}
	if d.Parse.Kind != collector.ParseNone {
		flags = append(flags, "parse="+d.Parse.Kind.String())
	}
	if d.ConstructorArgumentCount > 0 {
		flags = append(flags, fmt.Sprintf("ctor-args=%d", d.ConstructorArgumentCount))
	}
	if d.SkipObjectFactory {
		flags = append(flags, "no-factory")
	}
	if len(flags) == 0 {
		return ""
	}
	return "  [" + strings.Join(flags, " ") + "]"
}

func propFlags(p collector.PropertyDescriptor) string {
	var flags []string
	if p.IsRequired {
		flags = append(flags, "required")
	}
	if p.IsInitOnly {
		flags = append(flags, "init")
	}
	if p.Key != p.Name {
		flags = append(flags, "key="+p.Key)
	}
	if len(flags) == 0 {
		return ""
	}
	return "  [" + strings.Join(flags, " ") + "]"
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
