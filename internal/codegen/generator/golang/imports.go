package golang

import (
	"fmt"
	"go/types"
	"sort"
	"strconv"
	"strings"
)

const (
	pathReflect  = "reflect"
	pathAOT      = "github.com/Alia5/aotkit/aot"
	pathCommand  = "github.com/Alia5/aotkit/command"
	pathEvent    = "github.com/Alia5/aotkit/event"
	pathMetadata = "github.com/Alia5/aotkit/metadata"
)

// importSet assigns collision free names to the packages generated code
// refers to, and remembers which ones were used.
type importSet struct {
	local  string
	byPath map[string]string
	taken  map[string]bool
	names  map[string]string
}

func newImportSet(local *types.Package) *importSet {
	s := &importSet{
		local:  local.Path(),
		byPath: make(map[string]string),
		taken:  map[string]bool{local.Name(): true, "rt": true, "reg": true, "bus": true, "obj": true, "values": true, "v": true, "t": true, "err": true},
		names:  make(map[string]string),
	}
	// Names declared in the local package would shadow imports.
	for _, name := range local.Scope().Names() {
		s.taken[name] = true
	}
	return s
}

// use returns the name path is imported under.
func (s *importSet) use(path, name string) string {
	if alias, ok := s.byPath[path]; ok {
		return alias
	}
	alias := name
	for i := 2; s.taken[alias]; i++ {
		alias = fmt.Sprintf("%s%d", name, i)
	}
	s.taken[alias] = true
	s.byPath[path] = alias
	s.names[path] = name
	return alias
}

func (s *importSet) qualifier(p *types.Package) string {
	if p.Path() == s.local {
		return ""
	}
	return s.use(p.Path(), p.Name())
}

func (s *importSet) typeString(t types.Type) string {
	return types.TypeString(t, s.qualifier)
}

// objString qualifies a package level object, such as a constructor.
func (s *importSet) objString(pkg *types.Package, name string) string {
	if q := s.qualifier(pkg); q != "" {
		return q + "." + name
	}
	return name
}

// block renders the body of the import declaration, standard library first.
func (s *importSet) block() string {
	var std, other []string
	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		spec := strconv.Quote(p)
		if alias := s.byPath[p]; alias != s.names[p] || alias != lastElem(p) {
			spec = alias + " " + spec
		}
		if isStd(p) {
			std = append(std, spec)
		} else {
			other = append(other, spec)
		}
	}
	var b strings.Builder
	for _, g := range [][]string{std, other} {
		if len(g) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		for _, spec := range g {
			b.WriteString("\t" + spec + "\n")
		}
	}
	return b.String()
}

func lastElem(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func isStd(path string) bool {
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '.':
			return false
		case '/':
			return true
		}
	}
	return true
}

// nameable reports whether t can be spelled in the local package.
func (s *importSet) nameable(t types.Type) bool {
	switch t := types.Unalias(t).(type) {
	case *types.Named:
		obj := t.Obj()
		if obj.Pkg() != nil && obj.Pkg().Path() != s.local && !obj.Exported() {
			return false
		}
		for i := 0; i < t.TypeArgs().Len(); i++ {
			if !s.nameable(t.TypeArgs().At(i)) {
				return false
			}
		}
	case *types.Pointer:
		return s.nameable(t.Elem())
	case *types.Slice:
		return s.nameable(t.Elem())
	case *types.Array:
		return s.nameable(t.Elem())
	case *types.Map:
		return s.nameable(t.Key()) && s.nameable(t.Elem())
	case *types.Struct:
		for i := 0; i < t.NumFields(); i++ {
			if !t.Field(i).Exported() || !s.nameable(t.Field(i).Type()) {
				return false
			}
		}
	}
	return true
}
