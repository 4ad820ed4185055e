// Package endpoint declares the request/response contract that the code
// generator uses to find request DTOs.
//
// An endpoint is any named struct embedding Endpoint[Req, Res]. The generator
// collects Req and Res as root types and records the handler struct itself
// with its object factory skipped.
package endpoint

import "context"

// Empty marks an endpoint without a request or response body.
type Empty struct{}

// Endpoint is embedded by endpoint handler structs.
type Endpoint[Req any, Res any] struct{}

// Handler is implemented by endpoint handler structs.
type Handler[Req any, Res any] interface {
	Handle(ctx context.Context, req Req) (Res, error)
}
