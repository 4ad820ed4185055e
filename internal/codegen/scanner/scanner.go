package scanner

import (
	"fmt"
	"go/types"
	"sort"

	"github.com/Alia5/aotkit/internal/codegen/collector"
)

// Options configures a scan.
type Options struct {
	// EndpointType is the origin identity of the generic struct endpoint
	// handlers embed.
	EndpointType string
	// EventFuncs are generic functions whose instantiations name event types.
	EventFuncs []string
	// Blacklist is passed on to the collector.
	Blacklist []string
}

const eventPkg = "github.com/Alia5/aotkit/event"

// DefaultOptions returns the options used by `aotkit generate`.
func DefaultOptions() Options {
	return Options{
		EndpointType: "github.com/Alia5/aotkit/endpoint.Endpoint",
		EventFuncs: []string{
			eventPkg + ".Publish",
			eventPkg + ".Subscribe",
			eventPkg + ".SubscribeFunc",
			eventPkg + ".PublisherFor",
		},
	}
}

// Factory describes how generated code obtains a handler instance.
type Factory struct {
	// Func is a zero-argument constructor. Empty means new(T).
	Func           string `json:"func,omitempty" yaml:"func,omitempty" toml:"func,omitempty"`
	ReturnsPointer bool   `json:"-" yaml:"-" toml:"-"`
	// Injected is set when every constructor takes arguments. Such handlers
	// are resolved through command.Services at run time.
	Injected bool `json:"injected,omitempty" yaml:"injected,omitempty" toml:"injected,omitempty"`
}

// Endpoint is a struct embedding the endpoint base type.
type Endpoint struct {
	Handler  *types.Named
	Request  types.Type
	Response types.Type
}

// Command binds a command type to its handler.
type Command struct {
	Command types.Type
	Result  types.Type
	// Handler is the named handler type; generated code registers *Handler.
	Handler *types.Named
	Factory Factory
}

// OpenCommand is a generic handler serving a generic command family.
type OpenCommand struct {
	Command *types.Named
	Handler *types.Named
	// Instances are the closed instantiations found in the scanned packages.
	Instances []Command
}

// Subscriber handles one event type.
type Subscriber struct {
	Handler *types.Named
	Factory Factory
}

// Event is one event type with the subscribers declared in the package.
type Event struct {
	Event       types.Type
	Subscribers []Subscriber
}

// Result holds everything discovered in one package.
type Result struct {
	Package      *types.Package
	Dir          string
	Endpoints    []Endpoint
	Commands     []Command
	OpenCommands []OpenCommand
	Events       []Event
}

// Empty reports whether nothing was discovered.
func (r *Result) Empty() bool {
	return len(r.Endpoints) == 0 && len(r.Commands) == 0 && len(r.OpenCommands) == 0 && len(r.Events) == 0
}

// Roots returns the collector roots: endpoint request and response types,
// endpoint handlers with their factory skipped, commands and events.
func (r *Result) Roots() []collector.Root {
	var roots []collector.Root
	for _, e := range r.Endpoints {
		roots = append(roots,
			collector.Root{Type: e.Request},
			collector.Root{Type: e.Response},
			collector.Root{Type: e.Handler, SkipObjectFactory: true},
		)
	}
	for _, c := range r.Commands {
		roots = append(roots, collector.Root{Type: c.Command})
	}
	for _, oc := range r.OpenCommands {
		for _, c := range oc.Instances {
			roots = append(roots, collector.Root{Type: c.Command})
		}
	}
	for _, e := range r.Events {
		roots = append(roots, collector.Root{Type: e.Event})
	}
	return roots
}

// Scan inspects every package. Closed instantiations of generic commands are
// gathered across all packages, and kept for a handler's package only when
// that package can import every type they mention.
func Scan(pkgs []Package, opts Options) ([]*Result, error) {
	var instances []*types.Named
	seen := make(map[string]bool)
	for _, p := range pkgs {
		if p.Types == nil || p.Info == nil {
			return nil, fmt.Errorf("package %q was not type-checked", p.Dir)
		}
		for _, inst := range p.Info.Instances {
			n, ok := inst.Type.(*types.Named)
			if !ok || collector.ContainsTypeParam(n) {
				continue
			}
			id := collector.Identity(n)
			if !seen[id] {
				seen[id] = true
				instances = append(instances, n)
			}
		}
	}
	sort.Slice(instances, func(i, j int) bool {
		return collector.Identity(instances[i]) < collector.Identity(instances[j])
	})

	results := make([]*Result, 0, len(pkgs))
	for _, p := range pkgs {
		s := &scan{pkg: p, opts: opts, instances: instances, col: collector.New(collector.Options{
			Blacklist:    opts.Blacklist,
			LocalPackage: p.Types.Path(),
		})}
		results = append(results, s.run())
	}
	return results, nil
}

type scan struct {
	pkg       Package
	opts      Options
	instances []*types.Named
	col       *collector.Collector
	res       *Result
	events    map[string]int
}

func (s *scan) run() *Result {
	s.res = &Result{Package: s.pkg.Types, Dir: s.pkg.Dir}
	s.events = make(map[string]int)

	scope := s.pkg.Types.Scope()
	names := scope.Names()
	sort.Strings(names)
	for _, name := range names {
		obj, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || obj.IsAlias() {
			continue
		}
		named, ok := obj.Type().(*types.Named)
		if !ok {
			continue
		}
		if _, isIface := named.Underlying().(*types.Interface); isIface {
			continue
		}
		if named.TypeParams().Len() > 0 {
			s.openHandler(named)
			continue
		}
		s.endpoint(named)
		s.commandHandler(named)
		s.subscriber(named)
	}
	s.eventCalls()
	return s.res
}

func (s *scan) endpoint(n *types.Named) {
	st, ok := n.Underlying().(*types.Struct)
	if !ok {
		return
	}
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if !f.Embedded() {
			continue
		}
		base, ok := types.Unalias(f.Type()).(*types.Named)
		if !ok || originID(base) != s.opts.EndpointType || base.TypeArgs().Len() != 2 {
			continue
		}
		s.res.Endpoints = append(s.res.Endpoints, Endpoint{
			Handler:  n,
			Request:  base.TypeArgs().At(0),
			Response: base.TypeArgs().At(1),
		})
		return
	}
}

func (s *scan) commandHandler(n *types.Named) {
	cmd, res, ok := executeMethod(n)
	if !ok || !s.importable(cmd) || !s.importable(res) || !commandEligible(cmd) {
		return
	}
	s.res.Commands = append(s.res.Commands, Command{
		Command: cmd,
		Result:  res,
		Handler: n,
		Factory: s.factory(n),
	})
}

func (s *scan) subscriber(n *types.Named) {
	ev, ok := handleMethod(n)
	if !ok || !s.importable(ev) {
		return
	}
	f := s.factory(n)
	if f.Injected {
		// No way to construct it; the host subscribes it by hand.
		return
	}
	e := s.event(ev)
	e.Subscribers = append(e.Subscribers, Subscriber{Handler: n, Factory: f})
}

func (s *scan) event(t types.Type) *Event {
	id := collector.Identity(t)
	if i, ok := s.events[id]; ok {
		return &s.res.Events[i]
	}
	s.events[id] = len(s.res.Events)
	s.res.Events = append(s.res.Events, Event{Event: t})
	return &s.res.Events[len(s.res.Events)-1]
}

// eventCalls records the type arguments of event.Publish and friends called
// from this package.
func (s *scan) eventCalls() {
	funcs := make(map[string]bool, len(s.opts.EventFuncs))
	for _, f := range s.opts.EventFuncs {
		funcs[f] = true
	}
	var found []types.Type
	for ident, inst := range s.pkg.Info.Instances {
		fn, ok := s.pkg.Info.Uses[ident].(*types.Func)
		if !ok || !funcs[fn.FullName()] || inst.TypeArgs.Len() == 0 {
			continue
		}
		t := types.Unalias(inst.TypeArgs.At(0))
		if collector.ContainsTypeParam(t) || !s.importable(t) {
			continue
		}
		found = append(found, t)
	}
	sort.Slice(found, func(i, j int) bool {
		return collector.Identity(found[i]) < collector.Identity(found[j])
	})
	for _, t := range found {
		s.event(t)
	}
}

// openHandler matches generic handlers such as
//
//	func (h *PageHandler[T]) Execute(ctx context.Context, q Page[T]) ([]T, error)
//
// and binds every closed Page[X] instantiation to PageHandler[X].
func (s *scan) openHandler(n *types.Named) {
	var sig *types.Signature
	for i := 0; i < n.NumMethods(); i++ {
		if m := n.Method(i); m.Name() == "Execute" {
			sig = m.Type().(*types.Signature)
			break
		}
	}
	if sig == nil || !executeShape(sig) {
		return
	}
	cmd, ok := types.Unalias(sig.Params().At(1).Type()).(*types.Named)
	if !ok || cmd.TypeArgs().Len() == 0 {
		return
	}

	// position[k] is the command type argument bound to handler parameter k.
	recv := sig.RecvTypeParams()
	position := make([]int, recv.Len())
	for k := range position {
		position[k] = -1
	}
	for j := 0; j < cmd.TypeArgs().Len(); j++ {
		tp, ok := cmd.TypeArgs().At(j).(*types.TypeParam)
		if !ok {
			return
		}
		for k := 0; k < recv.Len(); k++ {
			if recv.At(k) == tp {
				position[k] = j
			}
		}
	}
	for _, j := range position {
		if j < 0 {
			return
		}
	}

	oc := OpenCommand{Command: cmd.Origin(), Handler: n}
	origin := originID(cmd)
	for _, inst := range s.instances {
		if originID(inst) != origin || !s.importable(inst) {
			continue
		}
		args := make([]types.Type, len(position))
		for k, j := range position {
			args[k] = inst.TypeArgs().At(j)
		}
		closed, err := types.Instantiate(nil, n, args, true)
		if err != nil {
			continue
		}
		h, ok := closed.(*types.Named)
		if !ok {
			continue
		}
		c, res, ok := executeMethod(h)
		if !ok || !types.Identical(c, inst) {
			continue
		}
		oc.Instances = append(oc.Instances, Command{Command: inst, Result: res, Handler: h})
	}
	s.res.OpenCommands = append(s.res.OpenCommands, oc)
}

func (s *scan) factory(n *types.Named) Factory {
	info := s.col.Constructors(n)
	if info.Func != "" {
		return Factory{Func: info.Func, ReturnsPointer: info.ReturnsPointer}
	}
	return Factory{Injected: info.Found && info.ArgumentCount > 0}
}

// importable reports whether generated code in the scanned package can name
// t without an import cycle.
func (s *scan) importable(t types.Type) bool {
	ok := true
	walkNamed(t, func(n *types.Named) {
		pkg := n.Obj().Pkg()
		if pkg == nil || pkg == s.pkg.Types || pkg.Path() == s.pkg.Types.Path() {
			return
		}
		if !n.Obj().Exported() || !imports(s.pkg.Types, pkg.Path(), map[string]bool{}) {
			ok = false
		}
	})
	return ok
}

func imports(from *types.Package, path string, seen map[string]bool) bool {
	for _, imp := range from.Imports() {
		if imp.Path() == path {
			return true
		}
		if seen[imp.Path()] {
			continue
		}
		seen[imp.Path()] = true
		if imports(imp, path, seen) {
			return true
		}
	}
	return false
}

func walkNamed(t types.Type, fn func(*types.Named)) {
	switch t := t.(type) {
	case *types.Named:
		fn(t)
		for i := 0; i < t.TypeArgs().Len(); i++ {
			walkNamed(t.TypeArgs().At(i), fn)
		}
	case *types.Pointer:
		walkNamed(t.Elem(), fn)
	case *types.Slice:
		walkNamed(t.Elem(), fn)
	case *types.Array:
		walkNamed(t.Elem(), fn)
	case *types.Map:
		walkNamed(t.Key(), fn)
		walkNamed(t.Elem(), fn)
	}
}

func originID(n *types.Named) string {
	obj := n.Origin().Obj()
	if obj.Pkg() == nil {
		return obj.Name()
	}
	return obj.Pkg().Path() + "." + obj.Name()
}

func commandEligible(t types.Type) bool {
	switch t.Underlying().(type) {
	case *types.Interface, *types.Signature, *types.Chan:
		return false
	}
	return !collector.ContainsTypeParam(t)
}

// executeMethod finds Execute(context.Context, C) (R, error) in the method
// set of *n.
func executeMethod(n *types.Named) (cmd, res types.Type, ok bool) {
	sel := types.NewMethodSet(types.NewPointer(n)).Lookup(n.Obj().Pkg(), "Execute")
	if sel == nil {
		return nil, nil, false
	}
	sig, isSig := sel.Type().(*types.Signature)
	if !isSig || !executeShape(sig) {
		return nil, nil, false
	}
	return types.Unalias(sig.Params().At(1).Type()), types.Unalias(sig.Results().At(0).Type()), true
}

func executeShape(sig *types.Signature) bool {
	return sig.Params().Len() == 2 && !sig.Variadic() &&
		isContext(sig.Params().At(0).Type()) &&
		sig.Results().Len() == 2 && isError(sig.Results().At(1).Type())
}

// handleMethod finds Handle(context.Context, E) error in the method set of
// *n.
func handleMethod(n *types.Named) (types.Type, bool) {
	sel := types.NewMethodSet(types.NewPointer(n)).Lookup(n.Obj().Pkg(), "Handle")
	if sel == nil {
		return nil, false
	}
	sig, ok := sel.Type().(*types.Signature)
	if !ok || sig.Params().Len() != 2 || sig.Variadic() || sig.Results().Len() != 1 {
		return nil, false
	}
	if !isContext(sig.Params().At(0).Type()) || !isError(sig.Results().At(0).Type()) {
		return nil, false
	}
	ev := types.Unalias(sig.Params().At(1).Type())
	if !commandEligible(ev) {
		return nil, false
	}
	return ev, true
}

func isContext(t types.Type) bool {
	n, ok := t.(*types.Named)
	return ok && n.Obj().Pkg() != nil && n.Obj().Pkg().Path() == "context" && n.Obj().Name() == "Context"
}

func isError(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}
