package testing

import (
	"context"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Alia5/aotkit/command"
)

// CallLog records the order in which middleware and handlers ran.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Add appends name.
func (l *CallLog) Add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

// Calls returns a copy of the recorded names.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// RecordingMiddleware logs name and continues the chain, unless stop is set.
func RecordingMiddleware(log *CallLog, name string, stop bool) command.MiddlewareFactory {
	return func() command.Middleware {
		return command.MiddlewareFunc(func(ctx context.Context, cmd any, next command.Next) (any, error) {
			log.Add(name)
			if stop {
				return nil, nil
			}
			return next(ctx)
		})
	}
}

type fakeHandler[C any, R any] struct {
	log    *CallLog
	name   string
	result R
	err    error
}

func (f *fakeHandler[C, R]) Execute(ctx context.Context, cmd C) (R, error) {
	if f.log != nil {
		f.log.Add(f.name)
	}
	return f.result, f.err
}

// CreateFakeHandler returns a command handler that logs name and returns
// result and err.
func CreateFakeHandler[C any, R any](
	t *testing.T,
	log *CallLog,
	name string,
	result R,
	err error,
) command.Handler[C, R] {
	t.Helper()
	return &fakeHandler[C, R]{log: log, name: name, result: result, err: err}
}

// CheckSource parses and type-checks a single file as package path. Only
// standard library imports are resolvable.
func CheckSource(t *testing.T, path, src string) (*types.Package, *types.Info) {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "src.go", src, parser.ParseComments)
	require.NoError(t, err)

	info := &types.Info{
		Types:     make(map[ast.Expr]types.TypeAndValue),
		Defs:      make(map[*ast.Ident]types.Object),
		Uses:      make(map[*ast.Ident]types.Object),
		Instances: make(map[*ast.Ident]types.Instance),
	}
	conf := types.Config{Importer: importer.ForCompiler(fset, "source", nil)}
	pkg, err := conf.Check(path, fset, []*ast.File{f}, info)
	require.NoError(t, err)
	return pkg, info
}

// LookupType returns the declared type name in pkg.
func LookupType(t *testing.T, pkg *types.Package, name string) types.Type {
	t.Helper()
	obj := pkg.Scope().Lookup(name)
	require.NotNil(t, obj, "type %s not declared", name)
	return obj.Type()
}
