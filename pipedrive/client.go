// Package pipedrive is a small read-only client for the Pipedrive v1 REST API
// covering the calls the MCP tools need.
//
// The Client interface is implemented three ways: HTTPClient talks to the API,
// RateLimited funnels every call through a shared ratelimit.Dispatcher, and
// Cached keeps slow-changing reference data in a storage.Storage. Production
// wiring stacks them as Cached(RateLimited(HTTPClient)).
package pipedrive

import (
	"context"
	"encoding/json"
)

// Client is the set of Pipedrive reads used by the tool handlers. Methods
// returning json.RawMessage hand back the response's data member untouched.
type Client interface {
	ListUsers(ctx context.Context) ([]User, error)

	ListDeals(ctx context.Context, f DealFilter) ([]Deal, error)
	SearchDeals(ctx context.Context, term string) (json.RawMessage, error)
	GetDeal(ctx context.Context, id int64) (json.RawMessage, error)
	ListDealNotes(ctx context.Context, dealID int64, limit int) ([]json.RawMessage, error)

	ListPersons(ctx context.Context) (json.RawMessage, error)
	GetPerson(ctx context.Context, id int64) (json.RawMessage, error)
	SearchPersons(ctx context.Context, term string) (json.RawMessage, error)

	ListOrganizations(ctx context.Context) (json.RawMessage, error)
	GetOrganization(ctx context.Context, id int64) (json.RawMessage, error)
	SearchOrganizations(ctx context.Context, term string) (json.RawMessage, error)

	ListPipelines(ctx context.Context) ([]Pipeline, error)
	GetPipeline(ctx context.Context, id int64) (json.RawMessage, error)
	ListStages(ctx context.Context, pipelineID int64) ([]Stage, error)

	SearchLeads(ctx context.Context, term string) (json.RawMessage, error)
	SearchItems(ctx context.Context, term string, itemTypes string) (json.RawMessage, error)
}

// DealFilter holds the server-side filters accepted by the deals list endpoint.
// Zero values are omitted from the request.
type DealFilter struct {
	Status     string
	Limit      int
	OwnerID    int64
	StageID    int64
	PipelineID int64
}
