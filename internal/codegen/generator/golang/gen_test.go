package golang_test

import (
	"go/parser"
	"go/token"
	"log/slog"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/aotkit/internal/codegen/collector"
	"github.com/Alia5/aotkit/internal/codegen/common"
	"github.com/Alia5/aotkit/internal/codegen/generator/golang"
	"github.com/Alia5/aotkit/internal/codegen/meta"
	"github.com/Alia5/aotkit/internal/codegen/scanner"
	htesting "github.com/Alia5/aotkit/internal/testing"
)

const shopPath = "example.com/shop"

const shopSrc = `package shop

import (
	"context"
	"net/netip"
)

type Endpoint[Req, Resp any] struct{}

func Publish[E any](ctx context.Context, ev E) error { return nil }

type Status int

func (s *Status) UnmarshalText(b []byte) error { return nil }

type GetReq struct {
	ID     string ` + "`json:\"id\" aot:\"required\"`" + `
	Status Status
	Tags   []string
	Addr   *netip.Addr
	Token  string ` + "`aot:\"init\"`" + `
	Hidden string ` + "`json:\"-\"`" + `
}

type GetResp struct{ Name string }

type GetHandler struct {
	Endpoint[GetReq, GetResp]
}

type Create struct{ Name string }

type CreateHandler struct{}

func (h *CreateHandler) Execute(ctx context.Context, c Create) (string, error) { return c.Name, nil }

type Archive struct{ ID string }

type ArchiveHandler struct{ dep string }

func NewArchiveHandler(dep string) *ArchiveHandler { return &ArchiveHandler{dep: dep} }

func (h *ArchiveHandler) Execute(ctx context.Context, c Archive) (int, error) { return 0, nil }

type Ping struct{}

type PingHandler struct{}

func NewPingHandler() PingHandler { return PingHandler{} }

func (PingHandler) Execute(ctx context.Context, p Ping) (bool, error) { return true, nil }

type Page[T any] struct{ Offset int }

type PageHandler[T any] struct{}

func (h *PageHandler[T]) Execute(ctx context.Context, q Page[T]) ([]T, error) { return nil, nil }

type Placed struct{ ID string }

type PlacedCounter struct{}

func (PlacedCounter) Handle(ctx context.Context, ev Placed) error { return nil }

func use(ctx context.Context) {
	_ = Page[GetResp]{}
}
`

func shopMetadata(t *testing.T, src string) *meta.Metadata {
	t.Helper()
	pkg, info := htesting.CheckSource(t, shopPath, src)
	results, err := scanner.Scan([]scanner.Package{{Types: pkg, Info: info, Dir: t.TempDir()}}, scanner.Options{
		EndpointType: shopPath + ".Endpoint",
		EventFuncs:   []string{shopPath + ".Publish"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	md, err := meta.New(results[0], collector.Options{})
	require.NoError(t, err)
	return md
}

func TestRenderParses(t *testing.T) {
	md := shopMetadata(t, shopSrc)
	out, err := golang.Render(md)
	require.NoError(t, err)

	f, err := parser.ParseFile(token.NewFileSet(), golang.FileName, out, parser.ParseComments)
	require.NoError(t, err, string(out))
	assert.Equal(t, "shop", f.Name.Name)

	var imports []string
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		require.NoError(t, err)
		imports = append(imports, p)
	}
	assert.ElementsMatch(t, []string{
		"net/netip",
		"reflect",
		"github.com/Alia5/aotkit/aot",
		"github.com/Alia5/aotkit/command",
		"github.com/Alia5/aotkit/event",
		"github.com/Alia5/aotkit/metadata",
	}, imports)

	src := string(out)
	assert.Contains(t, src, "//go:build !"+scanner.BuildTag)
	assert.Contains(t, src, common.FingerprintPrefix+md.Fingerprint)
	assert.Contains(t, src, "func Populate(rt *aot.Runtime) {")
}

func TestRenderMetadata(t *testing.T) {
	out, err := golang.Render(shopMetadata(t, shopSrc))
	require.NoError(t, err)
	src := string(out)

	assert.Contains(t, src, "metadata.Add[GetHandler](reg, metadata.Entry{})", "endpoint handlers get no factory")
	assert.Contains(t, src, "metadata.Add[GetReq](reg, metadata.Entry{")
	assert.Contains(t, src, "InitFactory: func(values map[string]any) any {")
	assert.Contains(t, src, `obj.Token = v.(string)`)
	assert.Contains(t, src, "metadata.ParseText[Status]")
	assert.Contains(t, src, "metadata.Many[string](metadata.ParseString[string])")
	assert.Contains(t, src, "metadata.One(metadata.Pointer[netip.Addr](metadata.ParseText[netip.Addr]))")
	assert.NotContains(t, src, `"Hidden"`)
}

func TestRenderCommands(t *testing.T) {
	out, err := golang.Render(shopMetadata(t, shopSrc))
	require.NoError(t, err)
	src := string(out)

	assert.Contains(t, src, "command.Register[Create, string](reg, reflect.TypeFor[*CreateHandler](), func() command.Handler[Create, string] { return new(CreateHandler) })")
	assert.Contains(t, src, "command.Register[Archive, int](reg, reflect.TypeFor[*ArchiveHandler](), nil)")
	assert.Contains(t, src, "func() *PingHandler { h := NewPingHandler(); return &h }()")
	assert.Contains(t, src, "command.Register[Page[GetResp], []GetResp](reg, reflect.TypeFor[*PageHandler[GetResp]](), func() command.Handler[Page[GetResp], []GetResp] { return new(PageHandler[GetResp]) })")
	assert.Contains(t, src, `"example.com/shop.Page"`)
	assert.Contains(t, src, "case reflect.TypeFor[Page[GetResp]]():")
}

func TestRenderEvents(t *testing.T) {
	out, err := golang.Render(shopMetadata(t, shopSrc))
	require.NoError(t, err)
	src := string(out)

	assert.Contains(t, src, "pub0 := event.PublisherFor[Placed](bus)")
	assert.Contains(t, src, `err := bus.Install("example.com/shop"`)
	assert.Contains(t, src, "event.Subscribe[Placed](bus, new(PlacedCounter))")
}

func TestRenderIsDeterministic(t *testing.T) {
	a, err := golang.Render(shopMetadata(t, shopSrc))
	require.NoError(t, err)
	b, err := golang.Render(shopMetadata(t, shopSrc))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRenderMetadataOnly(t *testing.T) {
	src := `package shop

type Endpoint[Req, Resp any] struct{}

type Req struct{ N int }

type Handler struct {
	Endpoint[Req, Req]
}
`
	out, err := golang.Render(shopMetadata(t, src))
	require.NoError(t, err)

	_, err = parser.ParseFile(token.NewFileSet(), golang.FileName, out, 0)
	require.NoError(t, err, string(out))
	assert.Contains(t, string(out), "func populateEvents(bus *event.Bus) {\n}")
}

func TestImportAliasesAvoidLocalNames(t *testing.T) {
	src := `package shop

import "context"

type Endpoint[Req, Resp any] struct{}

type metadata struct{}

type Q struct{ N int }

type QHandler struct{}

func (h *QHandler) Execute(ctx context.Context, q Q) (int, error) { return q.N, nil }
`
	out, err := golang.Render(shopMetadata(t, src))
	require.NoError(t, err)
	assert.Contains(t, string(out), `metadata2 "github.com/Alia5/aotkit/metadata"`)
	assert.Contains(t, string(out), "metadata2.Add[Q](reg, metadata2.Entry{")
}

func TestRenderWithoutScan(t *testing.T) {
	_, err := golang.Render(&meta.Metadata{Package: shopPath})
	assert.Error(t, err)
}

func TestGenerateWritesFile(t *testing.T) {
	md := shopMetadata(t, shopSrc)
	dir := t.TempDir()
	require.NoError(t, golang.Generate(slog.New(slog.DiscardHandler), dir, md))
	assert.FileExists(t, filepath.Join(dir, golang.FileName))
}
