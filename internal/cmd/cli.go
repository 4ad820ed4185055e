// Package cmd holds the kong command tree of the aotkit binary.
package cmd

import (
	"github.com/alecthomas/kong"

	"github.com/Alia5/aotkit/internal/codegen/scanner"
)

// CLI is the root of the command tree.
type CLI struct {
	ConfigFile string           `name:"config" help:"Path to a configuration file (json, yaml or toml)" env:"AOTKIT_CONFIG" type:"path"`
	Log        LogOptions       `embed:"" prefix:"log."`
	Version    kong.VersionFlag `help:"Print version information and quit"`

	Generate Generate      `cmd:"" help:"Scan packages and write zz_generated.aot.go plus the preserve manifest"`
	Inspect  Inspect       `cmd:"" help:"Print what a generate run would emit"`
	Verify   Verify        `cmd:"" help:"Fail when a generated file is missing or stale"`
	Config   ConfigCommand `cmd:"" help:"Configuration helpers"`
}

// LogOptions configures the process logger.
type LogOptions struct {
	Level  string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"AOTKIT_LOG_LEVEL"`
	File   string `help:"Also write logs to this file" env:"AOTKIT_LOG_FILE"`
	Format string `help:"Console log format" enum:"auto,text,json" default:"auto" env:"AOTKIT_LOG_FORMAT"`
}

// Source selects the packages a command scans.
type Source struct {
	Dir       string   `help:"Directory patterns are resolved against" default:"." env:"AOTKIT_DIR" type:"existingdir"`
	Patterns  []string `arg:"" optional:"" help:"Package patterns" default:"./..."`
	Blacklist []string `help:"Additional type identities the collector never expands" env:"AOTKIT_BLACKLIST"`
}

func (s Source) scanOptions() scanner.Options {
	opts := scanner.DefaultOptions()
	opts.Blacklist = append(opts.Blacklist, s.Blacklist...)
	return opts
}
