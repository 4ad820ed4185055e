package meta_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/aotkit/internal/codegen/collector"
	"github.com/Alia5/aotkit/internal/codegen/meta"
	"github.com/Alia5/aotkit/internal/codegen/scanner"
	htesting "github.com/Alia5/aotkit/internal/testing"
)

const src = `package shop

import "context"

type Publisher[E any] struct{}

type Page[T any] struct{ Offset int }

type PageHandler[T any] struct{}

func (h *PageHandler[T]) Execute(ctx context.Context, q Page[T]) ([]T, error) { return nil, nil }

type Order struct {
	ID   string
	Note string ` + "`json:\"-\"`" + `
}

type Placed struct{ ID string }

type Counter struct{}

func (Counter) Handle(ctx context.Context, ev Placed) error { return nil }

var _ = Page[Order]{}
`

func build(t *testing.T, src string) *meta.Metadata {
	t.Helper()
	pkg, info := htesting.CheckSource(t, "example.com/shop", src)
	results, err := scanner.Scan([]scanner.Package{{Types: pkg, Info: info}}, scanner.DefaultOptions())
	require.NoError(t, err)
	md, err := meta.New(results[0], collector.Options{})
	require.NoError(t, err)
	return md
}

func TestSummaries(t *testing.T) {
	md := build(t, src)

	assert.Equal(t, "example.com/shop", md.Package)
	assert.Equal(t, "shop", md.PackageName)
	require.Len(t, md.Commands, 1)
	c := md.Commands[0]
	assert.Equal(t, "example.com/shop.Page[example.com/shop.Order]", c.Command)
	assert.Equal(t, "[]example.com/shop.Order", c.Result)
	assert.Equal(t, "example.com/shop.Page", c.Open)

	require.Len(t, md.Events, 1)
	assert.Equal(t, meta.EventSummary{
		Event:       "example.com/shop.Placed",
		Subscribers: []string{"example.com/shop.Counter"},
	}, md.Events[0])

	assert.Equal(t, []string{
		"example.com/shop.Counter",
		"example.com/shop.Page[example.com/shop.Order]",
		"example.com/shop.PageHandler[example.com/shop.Order]",
		"example.com/shop.Placed",
	}, md.Preserve)
}

func TestFingerprint(t *testing.T) {
	a := build(t, src)
	b := build(t, src)
	assert.Len(t, a.Fingerprint, 64)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)

	changed := build(t, src+"\ntype Shipped struct{}\n\nfunc (Counter) Ignore(ctx context.Context, ev Shipped) error { return nil }\n")
	assert.Equal(t, a.Fingerprint, changed.Fingerprint, "declarations the scan ignores do not change it")

	subscribed := build(t, src+"\ntype Audit struct{}\n\nfunc (Audit) Handle(ctx context.Context, ev Placed) error { return nil }\n")
	assert.NotEqual(t, a.Fingerprint, subscribed.Fingerprint)
}
