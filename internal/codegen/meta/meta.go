package meta

import (
	"fmt"
	"go/types"
	"sort"

	"github.com/Alia5/aotkit/internal/codegen/collector"
	"github.com/Alia5/aotkit/internal/codegen/common"
	"github.com/Alia5/aotkit/internal/codegen/scanner"
)

// Metadata holds all scanned information needed for code generation of one
// package. Shared between the generator orchestrator and the output writers.
type Metadata struct {
	Package     string                      `json:"package" yaml:"package" toml:"package"`
	PackageName string                      `json:"packageName" yaml:"packageName" toml:"packageName"`
	Dir         string                      `json:"-" yaml:"-" toml:"-"`
	Types       []*collector.TypeDescriptor `json:"types" yaml:"types" toml:"types"`
	Commands    []CommandSummary            `json:"commands" yaml:"commands" toml:"commands"`
	Events      []EventSummary              `json:"events" yaml:"events" toml:"events"`
	Endpoints   []string                    `json:"endpoints" yaml:"endpoints" toml:"endpoints"`
	// Preserve lists every type identity whose members must stay reachable.
	Preserve    []string `json:"preserve" yaml:"preserve" toml:"preserve"`
	Fingerprint string   `json:"fingerprint" yaml:"fingerprint" toml:"fingerprint"`

	Scan *scanner.Result `json:"-" yaml:"-" toml:"-"`
}

// CommandSummary is the serializable view of a command binding.
type CommandSummary struct {
	Command string          `json:"command" yaml:"command" toml:"command"`
	Result  string          `json:"result" yaml:"result" toml:"result"`
	Handler string          `json:"handler" yaml:"handler" toml:"handler"`
	Factory scanner.Factory `json:"factory" yaml:"factory" toml:"factory"`
	// Open is the generic family origin for closed instantiations.
	Open string `json:"open,omitempty" yaml:"open,omitempty" toml:"open,omitempty"`
}

// EventSummary is the serializable view of an event and its subscribers.
type EventSummary struct {
	Event       string   `json:"event" yaml:"event" toml:"event"`
	Subscribers []string `json:"subscribers" yaml:"subscribers" toml:"subscribers"`
}

// New runs the collector over the scan result and derives the summaries,
// the preserve list and the fingerprint.
func New(res *scanner.Result, opts collector.Options) (*Metadata, error) {
	opts.LocalPackage = res.Package.Path()
	md := &Metadata{
		Package:     res.Package.Path(),
		PackageName: res.Package.Name(),
		Dir:         res.Dir,
		Types:       collector.New(opts).Collect(res.Roots()),
		Endpoints:   []string{},
		Scan:        res,
	}

	preserve := make(map[string]bool)
	for _, d := range md.Types {
		preserve[d.Identity] = true
	}
	for _, e := range res.Endpoints {
		md.Endpoints = append(md.Endpoints, collector.Identity(e.Handler))
		preserve[collector.Identity(e.Handler)] = true
	}
	addCommand := func(c scanner.Command, open string) {
		md.Commands = append(md.Commands, CommandSummary{
			Command: collector.Identity(c.Command),
			Result:  collector.Identity(c.Result),
			Handler: collector.Identity(c.Handler),
			Factory: c.Factory,
			Open:    open,
		})
		preserve[collector.Identity(c.Handler)] = true
	}
	for _, c := range res.Commands {
		addCommand(c, "")
	}
	for _, oc := range res.OpenCommands {
		for _, c := range oc.Instances {
			addCommand(c, originIdentity(oc.Command))
		}
	}
	for _, e := range res.Events {
		es := EventSummary{Event: collector.Identity(e.Event), Subscribers: []string{}}
		for _, s := range e.Subscribers {
			es.Subscribers = append(es.Subscribers, collector.Identity(s.Handler))
			preserve[collector.Identity(s.Handler)] = true
		}
		md.Events = append(md.Events, es)
	}

	for id := range preserve {
		md.Preserve = append(md.Preserve, id)
	}
	sort.Strings(md.Preserve)

	fp, err := common.Fingerprint(md)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", md.Package, err)
	}
	md.Fingerprint = fp
	return md, nil
}

// originIdentity names a generic type without its type parameter list.
func originIdentity(n *types.Named) string {
	obj := n.Origin().Obj()
	return obj.Pkg().Path() + "." + obj.Name()
}
