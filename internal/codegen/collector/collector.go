// Package collector walks Go types reachable from a set of root types and
// produces the deduplicated descriptor table the code generator emits.
package collector

import (
	"go/types"
	"reflect"
	"sort"
	"strings"

	"github.com/Alia5/aotkit/metadata"
)

// DefaultBlacklist lists types that are never expanded.
var DefaultBlacklist = []string{
	"net/url.URL",
	"net/url.Values",
	"encoding/json.RawMessage",
	"github.com/Alia5/aotkit/endpoint.Empty",
}

// Root is a starting point of a collection.
type Root struct {
	Type types.Type
	// SkipObjectFactory marks endpoint handler types, which are constructed
	// by the host and never bound from input.
	SkipObjectFactory bool
}

// Options configures a Collector.
type Options struct {
	// Blacklist adds identities to DefaultBlacklist.
	Blacklist []string
	// LocalPackage is the import path of the package the generated code will
	// live in. Its unexported types and functions are usable.
	LocalPackage string
}

// Collector turns root types into descriptors.
type Collector struct {
	blacklist map[string]bool
	local     string
}

// New returns a Collector.
func New(opts Options) *Collector {
	bl := make(map[string]bool, len(DefaultBlacklist)+len(opts.Blacklist))
	for _, id := range DefaultBlacklist {
		bl[id] = true
	}
	for _, id := range opts.Blacklist {
		bl[id] = true
	}
	return &Collector{blacklist: bl, local: opts.LocalPackage}
}

// Collect is New(Options{}).Collect(roots).
func Collect(roots []Root) []*TypeDescriptor {
	return New(Options{}).Collect(roots)
}

// Identity returns the stable key of t, e.g. "github.com/acme/orders.Order"
// or "github.com/acme/orders.Page[github.com/acme/orders.Order]".
func Identity(t types.Type) string {
	return types.TypeString(t, nil)
}

// Collect visits the roots breadth first and returns one descriptor per
// distinct named type that needs metadata, in alias order. Ineligible types
// are skipped without error.
func (c *Collector) Collect(roots []Root) []*TypeDescriptor {
	type item struct {
		t    types.Type
		skip bool
	}
	queue := make([]item, 0, len(roots))
	for _, r := range roots {
		if r.Type != nil {
			queue = append(queue, item{t: r.Type, skip: r.SkipObjectFactory})
		}
	}

	var (
		out     []*TypeDescriptor
		visited = make(map[string]bool)
		alias   int
	)
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		t := c.candidate(it.t)
		if t == nil {
			continue
		}
		id := Identity(t)
		if visited[id] {
			continue
		}
		visited[id] = true

		named, ok := t.(*types.Named)
		if !ok || !c.eligible(named) {
			continue
		}
		d := c.describe(named, alias)
		alias++
		if d == nil {
			continue
		}
		d.SkipObjectFactory = it.skip
		out = append(out, d)
		for _, p := range d.Properties {
			queue = append(queue, item{t: p.Type})
		}
	}
	return out
}

// candidate dereferences pointers and substitutes sequence element types
// until a non-sequence type remains. It returns nil for blacklisted types.
func (c *Collector) candidate(t types.Type) types.Type {
	for t != nil {
		t = types.Unalias(t)
		if c.blacklist[Identity(t)] {
			return nil
		}
		if p, ok := t.(*types.Pointer); ok {
			t = p.Elem()
			continue
		}
		elem, ok := Element(t)
		if !ok {
			return t
		}
		t = elem
	}
	return nil
}

// Element returns the element type of slices, arrays and maps, including
// named types with such an underlying type. []byte is not a sequence.
func Element(t types.Type) (types.Type, bool) {
	switch u := t.Underlying().(type) {
	case *types.Slice:
		if isByte(u.Elem()) {
			return nil, false
		}
		return u.Elem(), true
	case *types.Array:
		return u.Elem(), true
	case *types.Map:
		return u.Elem(), true
	}
	return nil, false
}

func isByte(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Kind() == types.Byte
}

func (c *Collector) eligible(n *types.Named) bool {
	obj := n.Obj()
	if obj.Pkg() == nil {
		// error and comparable
		return false
	}
	if !obj.Exported() && obj.Pkg().Path() != c.local {
		return false
	}
	if isOpen(n) {
		return false
	}
	switch n.Underlying().(type) {
	case *types.Interface, *types.Signature, *types.Chan:
		return false
	}
	return true
}

// isOpen reports whether n is a generic type without concrete type
// arguments.
func isOpen(n *types.Named) bool {
	if n.TypeParams().Len() > 0 && n.TypeArgs().Len() == 0 {
		return true
	}
	args := n.TypeArgs()
	for i := 0; i < args.Len(); i++ {
		if ContainsTypeParam(args.At(i)) {
			return true
		}
	}
	return false
}

// ContainsTypeParam reports whether t mentions a type parameter.
func ContainsTypeParam(t types.Type) bool {
	switch t := t.(type) {
	case *types.TypeParam:
		return true
	case *types.Pointer:
		return ContainsTypeParam(t.Elem())
	case *types.Slice:
		return ContainsTypeParam(t.Elem())
	case *types.Array:
		return ContainsTypeParam(t.Elem())
	case *types.Map:
		return ContainsTypeParam(t.Key()) || ContainsTypeParam(t.Elem())
	case *types.Chan:
		return ContainsTypeParam(t.Elem())
	case *types.Named:
		args := t.TypeArgs()
		for i := 0; i < args.Len(); i++ {
			if ContainsTypeParam(args.At(i)) {
				return true
			}
		}
	case *types.Signature:
		return true
	}
	return false
}

func (c *Collector) describe(n *types.Named, alias int) *TypeDescriptor {
	obj := n.Obj()
	d := &TypeDescriptor{
		Identity:    Identity(n),
		Alias:       alias,
		Package:     obj.Pkg().Path(),
		Name:        obj.Name(),
		IsValueType: isValueType(n),
		Parse:       c.DetectParse(n),
		Type:        n,
	}

	st, isStruct := n.Underlying().(*types.Struct)
	if !isStruct {
		// Named scalars and the like only matter when they parse.
		if d.Parse.Kind == ParseNone {
			return nil
		}
		return d
	}

	ctor := c.Constructors(n)
	d.ConstructorArgumentCount = ctor.ArgumentCount
	d.Constructor = ctor.Func
	d.ConstructorReturnsPointer = ctor.ReturnsPointer
	d.Properties = c.properties(st, nil)
	return d
}

func isValueType(n *types.Named) bool {
	switch n.Underlying().(type) {
	case *types.Pointer, *types.Slice, *types.Map, *types.Chan, *types.Signature, *types.Interface:
		return false
	}
	return true
}

// properties lists the exported fields of st. Embedded structs are expanded
// in place, so a name can appear more than once with different paths.
// Blacklisted embeds stay a single property. Fields promoted through an
// unexported embed are addressed by their own name and are dropped when
// shadowed or ambiguous.
func (c *Collector) properties(st *types.Struct, path []string) []PropertyDescriptor {
	var props []PropertyDescriptor
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if f.Embedded() && !c.blacklist[Identity(types.Unalias(f.Type()))] {
			if inner, ok := embeddedStruct(f.Type()); ok {
				if f.Exported() {
					props = append(props, c.properties(inner, appendPath(path, f.Name()))...)
					continue
				}
				for _, p := range c.properties(inner, path) {
					if promotedVia(st, p.Path[len(path)], i) {
						props = append(props, p)
					}
				}
				continue
			}
		}
		if !f.Exported() {
			continue
		}
		fieldPath := appendPath(path, f.Name())

		tag := metadata.ParseFieldTag(reflect.StructTag(st.Tag(i)))
		if tag.Skip() {
			continue
		}
		key := tag.Key
		if key == "" {
			key = f.Name()
		}
		p := PropertyDescriptor{
			Name:         f.Name(),
			Key:          key,
			Path:         fieldPath,
			DeclaredType: Identity(f.Type()),
			IsInitOnly:   tag.InitOnly,
			IsRequired:   tag.Required,
			IsExcluded:   tag.Excluded,
			Type:         f.Type(),
		}
		c.classify(&p)
		props = append(props, p)
	}
	return props
}

func appendPath(path []string, name string) []string {
	return append(append([]string(nil), path...), name)
}

// promotedVia reports whether name selects a field of st reached through its
// embedded field at index field.
func promotedVia(st *types.Struct, name string, field int) bool {
	obj, index, _ := types.LookupFieldOrMethod(st, false, nil, name)
	if _, ok := obj.(*types.Var); !ok {
		return false
	}
	return len(index) > 1 && index[0] == field
}

func embeddedStruct(t types.Type) (*types.Struct, bool) {
	n, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return nil, false
	}
	st, ok := n.Underlying().(*types.Struct)
	return st, ok
}

func (c *Collector) classify(p *PropertyDescriptor) {
	t := types.Unalias(p.Type)
	if ptr, ok := t.(*types.Pointer); ok {
		p.IsPointer = true
		t = types.Unalias(ptr.Elem())
	}
	if !c.blacklist[Identity(t)] {
		if elem, ok := Element(t); ok {
			p.Kind = KindSequence
			elem = types.Unalias(elem)
			p.Element = Identity(elem)
			if ptr, ok := elem.(*types.Pointer); ok {
				elem = ptr.Elem()
			}
			p.Parse = c.DetectParse(elem)
			return
		}
	}
	p.Parse = c.DetectParse(t)
	switch {
	case p.Parse.Kind != ParseNone:
		p.Kind = KindParsable
	case isScalar(t):
		p.Kind = KindLeaf
	default:
		switch t.Underlying().(type) {
		case *types.Struct:
			p.Kind = KindStruct
		default:
			p.Kind = KindOpaque
		}
	}
}

func isScalar(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	if !ok {
		return false
	}
	info := b.Info()
	return info&(types.IsBoolean|types.IsInteger|types.IsFloat|types.IsString) != 0
}

func (c *Collector) usable(obj types.Object) bool {
	return obj.Exported() || (obj.Pkg() != nil && obj.Pkg().Path() == c.local)
}

// ConstructorInfo summarizes the New<Name> constructors of a type.
type ConstructorInfo struct {
	// ArgumentCount is the smallest required argument count, or 0 when a
	// zero-argument constructor exists or there is none.
	ArgumentCount int
	// Func is the first zero-argument constructor by name, if any.
	Func           string
	ReturnsPointer bool
	Found          bool
}

// Constructors inspects the package level functions named New<Name>...
// whose first result is the type or a pointer to it. A variadic tail does not
// count as required. Generic instantiations have no constructors.
func (c *Collector) Constructors(n *types.Named) ConstructorInfo {
	var info ConstructorInfo
	if n.TypeArgs().Len() > 0 || n.Obj().Pkg() == nil {
		return info
	}
	scope := n.Obj().Pkg().Scope()
	prefix := "New" + n.Obj().Name()

	names := scope.Names()
	sort.Strings(names)
	minArgs := -1
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		fn, ok := scope.Lookup(name).(*types.Func)
		if !ok || !c.usable(fn) {
			continue
		}
		sig := fn.Type().(*types.Signature)
		if sig.TypeParams().Len() > 0 || sig.Results().Len() == 0 {
			continue
		}
		res := sig.Results().At(0).Type()
		ptr := false
		if p, ok := res.(*types.Pointer); ok {
			res, ptr = p.Elem(), true
		}
		if !types.Identical(res, n) {
			continue
		}
		info.Found = true
		required := sig.Params().Len()
		if sig.Variadic() {
			required--
		}
		if required == 0 && sig.Results().Len() == 1 && info.Func == "" {
			info.Func = name
			info.ReturnsPointer = ptr
		}
		if minArgs < 0 || required < minArgs {
			minArgs = required
		}
	}
	if minArgs > 0 {
		info.ArgumentCount = minArgs
	}
	return info
}

var (
	byteSlice = types.NewSlice(types.Typ[types.Byte])
	errorType = types.Universe.Lookup("error").Type()
)

// DetectParse reports how values of t are parsed from a string. An
// UnmarshalText method takes precedence over Parse<Name> and TryParse<Name>
// functions.
func (c *Collector) DetectParse(t types.Type) ParseInfo {
	n, ok := types.Unalias(t).(*types.Named)
	if !ok || n.Obj().Pkg() == nil {
		return ParseInfo{}
	}
	if hasUnmarshalText(n) {
		return ParseInfo{Kind: ParseText}
	}
	if n.TypeArgs().Len() > 0 {
		return ParseInfo{}
	}

	scope := n.Obj().Pkg().Scope()
	for _, name := range []string{"Parse" + n.Obj().Name(), "TryParse" + n.Obj().Name()} {
		fn, ok := scope.Lookup(name).(*types.Func)
		if !ok || !c.usable(fn) {
			continue
		}
		sig := fn.Type().(*types.Signature)
		if sig.TypeParams().Len() > 0 || sig.Variadic() || sig.Params().Len() != 1 || sig.Results().Len() != 2 {
			continue
		}
		if b, ok := sig.Params().At(0).Type().(*types.Basic); !ok || b.Kind() != types.String {
			continue
		}
		res := sig.Results().At(0).Type()
		ptr := false
		if p, ok := res.(*types.Pointer); ok {
			res, ptr = p.Elem(), true
		}
		if !types.Identical(res, n) {
			continue
		}
		second := sig.Results().At(1).Type()
		if b, ok := second.(*types.Basic); ok && b.Kind() == types.Bool && !ptr {
			return ParseInfo{Kind: ParseFunc, Func: name, ReturnsBool: true}
		}
		if types.Identical(second, errorType) {
			return ParseInfo{Kind: ParseFunc, Func: name, ReturnsPointer: ptr}
		}
	}
	return ParseInfo{}
}

func hasUnmarshalText(n *types.Named) bool {
	ms := types.NewMethodSet(types.NewPointer(n))
	sel := ms.Lookup(nil, "UnmarshalText")
	if sel == nil {
		return false
	}
	sig, ok := sel.Type().(*types.Signature)
	if !ok || sig.Params().Len() != 1 || sig.Results().Len() != 1 {
		return false
	}
	return types.Identical(sig.Params().At(0).Type(), byteSlice) &&
		types.Identical(sig.Results().At(0).Type(), errorType)
}
