// Package golang renders the zz_generated.aot.go file of one package.
package golang

import (
	"bytes"
	"fmt"
	"go/format"
	"go/types"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Alia5/aotkit/internal/codegen/collector"
	"github.com/Alia5/aotkit/internal/codegen/common"
	"github.com/Alia5/aotkit/internal/codegen/meta"
	"github.com/Alia5/aotkit/internal/codegen/scanner"
)

// FileName is the name of the generated file in each package directory.
const FileName = "zz_generated.aot.go"

// Generate writes FileName into outputDir.
func Generate(logger *slog.Logger, outputDir string, md *meta.Metadata) error {
	src, err := Render(md)
	if err != nil {
		return err
	}
	path := filepath.Join(outputDir, FileName)
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", FileName, err)
	}
	logger.Debug("Generated Go populate file", "path", path, "types", len(md.Types), "commands", len(md.Commands), "events", len(md.Events))
	return nil
}

// Render returns the formatted generated source.
func Render(md *meta.Metadata) ([]byte, error) {
	if md.Scan == nil {
		return nil, fmt.Errorf("render %s: metadata has no scan result", md.Package)
	}
	version, err := common.GetVersion()
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}

	b := &builder{imports: newImportSet(md.Scan.Package), md: md}
	view := b.build()
	view.Version = version

	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render %s: %w", md.Package, err)
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format %s: %w\n%s", md.Package, err, buf.Bytes())
	}
	return out, nil
}

type fileView struct {
	BuildTag    string
	Fingerprint string
	Version     string
	Package     string
	PackageName string
	Imports     string

	AOT      string
	Command  string
	Event    string
	Metadata string
	Reflect  string

	Types    []typeView
	Commands []commandView
	Open     []openView
	Events   []eventView
}

type typeView struct {
	Alias     int
	Identity  string
	Type      string
	NewStmt   string
	Factory   bool
	InitProps []propView
	Parser    string
	Props     []propView
	Empty     bool
}

type propView struct {
	Name     string
	Key      string
	Type     string
	Selector string
	InitOnly bool
	Required bool
	Bind     string
}

type commandView struct {
	Command string
	Result  string
	Handler string
	Factory string
}

type openView struct {
	Origin        string
	HandlerOrigin string
	Cases         []commandView
}

type eventView struct {
	Type        string
	Subscribers []string
}

type builder struct {
	imports *importSet
	md      *meta.Metadata
}

func (b *builder) build() fileView {
	v := fileView{
		BuildTag:    scanner.BuildTag,
		Fingerprint: b.md.Fingerprint,
		Package:     b.md.Package,
		PackageName: b.md.PackageName,
		AOT:         b.imports.use(pathAOT, "aot"),
		Command:     b.imports.use(pathCommand, "command"),
		Event:       b.imports.use(pathEvent, "event"),
		Metadata:    b.imports.use(pathMetadata, "metadata"),
	}
	// reflect is only imported when something needs it.
	reflectName := func() string { return b.imports.use(pathReflect, "reflect") }

	for _, d := range b.md.Types {
		if !b.imports.nameable(d.Type) {
			continue
		}
		v.Types = append(v.Types, b.typeView(d, reflectName))
	}

	res := b.md.Scan
	for _, c := range res.Commands {
		v.Commands = append(v.Commands, b.commandView(c, v.Command))
	}
	for _, oc := range res.OpenCommands {
		ov := openView{
			Origin:        originID(oc.Command),
			HandlerOrigin: originID(oc.Handler),
		}
		for _, c := range oc.Instances {
			cv := b.commandView(c, v.Command)
			v.Commands = append(v.Commands, cv)
			ov.Cases = append(ov.Cases, cv)
		}
		v.Open = append(v.Open, ov)
	}
	for _, e := range res.Events {
		ev := eventView{Type: b.imports.typeString(e.Event)}
		for _, s := range e.Subscribers {
			ev.Subscribers = append(ev.Subscribers, b.instance(s.Handler, s.Factory))
		}
		v.Events = append(v.Events, ev)
	}
	if len(v.Commands) > 0 || len(v.Open) > 0 || len(v.Events) > 0 {
		reflectName()
	}
	v.Reflect = b.imports.byPath[pathReflect]
	v.Imports = b.imports.block()
	return v
}

func (b *builder) typeView(d *collector.TypeDescriptor, reflectName func() string) typeView {
	tv := typeView{
		Alias:    d.Alias,
		Identity: d.Identity,
		Type:     b.imports.typeString(d.Type),
		Factory:  !d.SkipObjectFactory,
		Parser:   b.parser(d.Type, d.Parse),
	}

	switch {
	case d.Constructor != "" && d.ConstructorReturnsPointer:
		tv.NewStmt = "obj := " + b.imports.objString(d.Type.Obj().Pkg(), d.Constructor) + "()"
	case d.Constructor != "":
		tv.NewStmt = fmt.Sprintf("obj := new(%s)\n*obj = %s()", tv.Type, b.imports.objString(d.Type.Obj().Pkg(), d.Constructor))
	default:
		tv.NewStmt = fmt.Sprintf("obj := new(%s)", tv.Type)
	}

	for _, p := range d.Properties {
		if !b.imports.nameable(p.Type) {
			continue
		}
		pv := propView{
			Name:     p.Name,
			Key:      p.Key,
			Type:     b.imports.typeString(p.Type),
			Selector: strings.Join(p.Path, "."),
			InitOnly: p.IsInitOnly,
			Required: p.IsRequired,
			Bind:     b.binder(p),
		}
		reflectName()
		tv.Props = append(tv.Props, pv)
		if pv.InitOnly && tv.Factory {
			tv.InitProps = append(tv.InitProps, pv)
		}
	}
	tv.Empty = !tv.Factory && tv.Parser == "" && len(tv.Props) == 0
	return tv
}

func (b *builder) commandView(c scanner.Command, commandPkg string) commandView {
	cv := commandView{
		Command: b.imports.typeString(c.Command),
		Result:  b.imports.typeString(c.Result),
		Handler: b.imports.typeString(c.Handler),
		Factory: "nil",
	}
	if !c.Factory.Injected {
		cv.Factory = fmt.Sprintf("func() %s.Handler[%s, %s] { return %s }",
			commandPkg, cv.Command, cv.Result, b.instance(c.Handler, c.Factory))
	}
	return cv
}

// instance is an expression yielding a *T for a handler type T.
func (b *builder) instance(t *types.Named, f scanner.Factory) string {
	name := b.imports.typeString(t)
	switch {
	case f.Func != "" && f.ReturnsPointer:
		return b.imports.objString(t.Obj().Pkg(), f.Func) + "()"
	case f.Func != "":
		return fmt.Sprintf("func() *%s { h := %s(); return &h }()", name, b.imports.objString(t.Obj().Pkg(), f.Func))
	}
	return fmt.Sprintf("new(%s)", name)
}

// parser is the metadata.Parser expression for a named type, or "".
func (b *builder) parser(t types.Type, info collector.ParseInfo) string {
	md := b.imports.use(pathMetadata, "metadata")
	switch info.Kind {
	case collector.ParseText:
		return fmt.Sprintf("%s.ParseText[%s]", md, b.imports.typeString(t))
	case collector.ParseFunc:
		n, ok := types.Unalias(t).(*types.Named)
		if !ok {
			return ""
		}
		fn := b.imports.objString(n.Obj().Pkg(), info.Func)
		switch {
		case info.ReturnsBool:
			return fmt.Sprintf("%s.TryParseWith(%s)", md, fn)
		case info.ReturnsPointer:
			return fmt.Sprintf("%s.ParsePointerWith(%s)", md, fn)
		}
		return fmt.Sprintf("%s.ParseWith(%s)", md, fn)
	}
	return ""
}

// scalarParser handles parsable named types and basic kinds.
func (b *builder) scalarParser(t types.Type, info collector.ParseInfo) string {
	if p := b.parser(t, info); p != "" {
		return p
	}
	basic, ok := t.Underlying().(*types.Basic)
	if !ok {
		return ""
	}
	md := b.imports.use(pathMetadata, "metadata")
	name := b.imports.typeString(t)
	kind := basic.Info()
	switch {
	case kind&types.IsBoolean != 0:
		return fmt.Sprintf("%s.ParseBool[%s]", md, name)
	case kind&types.IsString != 0:
		return fmt.Sprintf("%s.ParseString[%s]", md, name)
	case kind&types.IsFloat != 0:
		return fmt.Sprintf("%s.ParseFloat[%s]", md, name)
	case kind&types.IsUnsigned != 0:
		return fmt.Sprintf("%s.ParseUnsigned[%s]", md, name)
	case kind&types.IsInteger != 0:
		return fmt.Sprintf("%s.ParseSigned[%s]", md, name)
	}
	return ""
}

// binder is the metadata.Binder expression of a property, or "" when values
// of its type cannot be bound from strings.
func (b *builder) binder(p collector.PropertyDescriptor) string {
	md := b.imports.use(pathMetadata, "metadata")
	t := types.Unalias(p.Type)
	switch p.Kind {
	case collector.KindLeaf, collector.KindParsable:
		if ptr, ok := t.(*types.Pointer); ok {
			elem := types.Unalias(ptr.Elem())
			inner := b.scalarParser(elem, p.Parse)
			if inner == "" {
				return ""
			}
			return fmt.Sprintf("%s.One(%s.Pointer[%s](%s))", md, md, b.imports.typeString(elem), inner)
		}
		inner := b.scalarParser(t, p.Parse)
		if inner == "" {
			return ""
		}
		return fmt.Sprintf("%s.One(%s)", md, inner)
	case collector.KindSequence:
		// Many yields []E, so only unnamed slices can take its result.
		s, ok := t.(*types.Slice)
		if !ok {
			return ""
		}
		elem := types.Unalias(s.Elem())
		if ptr, ok := elem.(*types.Pointer); ok {
			inner := types.Unalias(ptr.Elem())
			parse := b.scalarParser(inner, p.Parse)
			if parse == "" {
				return ""
			}
			return fmt.Sprintf("%s.Many[%s](%s.Pointer[%s](%s))", md, b.imports.typeString(elem), md, b.imports.typeString(inner), parse)
		}
		inner := b.scalarParser(elem, p.Parse)
		if inner == "" {
			return ""
		}
		return fmt.Sprintf("%s.Many[%s](%s)", md, b.imports.typeString(elem), inner)
	}
	return ""
}

func originID(n *types.Named) string {
	obj := n.Origin().Obj()
	return obj.Pkg().Path() + "." + obj.Name()
}

var fileTemplate = template.Must(template.New("aot").Parse(`//go:build !{{.BuildTag}}

// Code generated by aotkit generate. DO NOT EDIT.
` + common.FingerprintPrefix + `{{.Fingerprint}}
// aotkit:version {{.Version}}

package {{.PackageName}}

import (
{{.Imports}})

// Populate installs the metadata, command and event tables generated for
// {{.Package}}. Pass it to aot.Runtime.Populate; running it again is
// harmless.
func Populate(rt *{{.AOT}}.Runtime) {
	populateMetadata(rt.Metadata())
	populateCommands(rt.Commands())
	populateEvents(rt.Events())
}

func populateMetadata(reg *{{.Metadata}}.Registry) {
{{- range $d := .Types}}
	// {{$d.Alias}}: {{$d.Identity}}
{{- if $d.Empty}}
	{{$.Metadata}}.Add[{{$d.Type}}](reg, {{$.Metadata}}.Entry{})
{{- else}}
	{{$.Metadata}}.Add[{{$d.Type}}](reg, {{$.Metadata}}.Entry{
{{- if $d.Factory}}
		Factory: func() any {
			{{$d.NewStmt}}
			return obj
		},
{{- if $d.InitProps}}
		InitFactory: func(values map[string]any) any {
			{{$d.NewStmt}}
{{- range $d.InitProps}}
			if v, ok := values[{{printf "%q" .Name}}]; ok {
				obj.{{.Selector}} = v.({{.Type}})
			}
{{- end}}
			return obj
		},
{{- end}}
{{- end}}
{{- if $d.Parser}}
		Parser: {{$d.Parser}},
{{- end}}
{{- if $d.Props}}
		Properties: []{{$.Metadata}}.Property{
{{- range $d.Props}}
			{
				Name: {{printf "%q" .Name}},
				Key:  {{printf "%q" .Key}},
				Type: {{$.Reflect}}.TypeFor[{{.Type}}](),
{{- if .InitOnly}}
				InitOnly: true,
{{- end}}
{{- if .Required}}
				Required: true,
{{- end}}
				Get: func(obj any) any { return obj.(*{{$d.Type}}).{{.Selector}} },
{{- if not .InitOnly}}
				Set: func(obj, v any) { obj.(*{{$d.Type}}).{{.Selector}} = v.({{.Type}}) },
{{- end}}
{{- if .Bind}}
				Bind: {{.Bind}},
{{- end}}
			},
{{- end}}
		},
{{- end}}
	})
{{- end}}
{{- end}}
}

func populateCommands(reg *{{.Command}}.Registry) {
{{- range .Commands}}
	{{$.Command}}.Register[{{.Command}}, {{.Result}}](reg, {{$.Reflect}}.TypeFor[*{{.Handler}}](), {{.Factory}})
{{- end}}
{{- range .Open}}
	reg.RegisterOpen({{$.Command}}.OpenDefinition{
		Origin:        {{printf "%q" .Origin}},
		HandlerOrigin: {{printf "%q" .HandlerOrigin}},
		Instantiate: func(t {{$.Reflect}}.Type) ({{$.Reflect}}.Type, bool) {
			switch t {
{{- range .Cases}}
			case {{$.Reflect}}.TypeFor[{{.Command}}]():
				return {{$.Reflect}}.TypeFor[*{{.Handler}}](), true
{{- end}}
			}
			return nil, false
		},
	})
{{- end}}
}

func populateEvents(bus *{{.Event}}.Bus) {
{{- if .Events}}
{{- range $i, $e := .Events}}
	pub{{$i}} := {{$.Event}}.PublisherFor[{{$e.Type}}](bus)
{{- end}}
	err := bus.Install({{printf "%q" .Package}}, func(t {{$.Reflect}}.Type) {{$.Event}}.PublishFunc {
		switch t {
{{- range $i, $e := .Events}}
		case {{$.Reflect}}.TypeFor[{{$e.Type}}]():
			return pub{{$i}}
{{- end}}
		}
		return nil
	})
	if err != nil {
		return
	}
{{- range $e := .Events}}
{{- range $e.Subscribers}}
	{{$.Event}}.Subscribe[{{$e.Type}}](bus, {{.}})
{{- end}}
{{- end}}
{{- end}}
}
`))
