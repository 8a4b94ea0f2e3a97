package pipedrive

import (
	"context"
	"encoding/json"

	"github.com/ggoodman/pipedrive-mcp-server-go/ratelimit"
)

// RateLimited routes every call of the wrapped Client through one shared
// dispatcher. Results and errors pass through unchanged.
type RateLimited struct {
	inner Client
	d     *ratelimit.Dispatcher
}

// NewRateLimited wraps inner so that each method is admitted by d.
func NewRateLimited(inner Client, d *ratelimit.Dispatcher) *RateLimited {
	return &RateLimited{inner: inner, d: d}
}

func (r *RateLimited) ListUsers(ctx context.Context) ([]User, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) ([]User, error) {
		return r.inner.ListUsers(ctx)
	})
}

func (r *RateLimited) ListDeals(ctx context.Context, f DealFilter) ([]Deal, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) ([]Deal, error) {
		return r.inner.ListDeals(ctx, f)
	})
}

func (r *RateLimited) SearchDeals(ctx context.Context, term string) (json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) (json.RawMessage, error) {
		return r.inner.SearchDeals(ctx, term)
	})
}

func (r *RateLimited) GetDeal(ctx context.Context, id int64) (json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) (json.RawMessage, error) {
		return r.inner.GetDeal(ctx, id)
	})
}

func (r *RateLimited) ListDealNotes(ctx context.Context, dealID int64, limit int) ([]json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) ([]json.RawMessage, error) {
		return r.inner.ListDealNotes(ctx, dealID, limit)
	})
}

func (r *RateLimited) ListPersons(ctx context.Context) (json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) (json.RawMessage, error) {
		return r.inner.ListPersons(ctx)
	})
}

func (r *RateLimited) GetPerson(ctx context.Context, id int64) (json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) (json.RawMessage, error) {
		return r.inner.GetPerson(ctx, id)
	})
}

func (r *RateLimited) SearchPersons(ctx context.Context, term string) (json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) (json.RawMessage, error) {
		return r.inner.SearchPersons(ctx, term)
	})
}

func (r *RateLimited) ListOrganizations(ctx context.Context) (json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) (json.RawMessage, error) {
		return r.inner.ListOrganizations(ctx)
	})
}

func (r *RateLimited) GetOrganization(ctx context.Context, id int64) (json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) (json.RawMessage, error) {
		return r.inner.GetOrganization(ctx, id)
	})
}

func (r *RateLimited) SearchOrganizations(ctx context.Context, term string) (json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) (json.RawMessage, error) {
		return r.inner.SearchOrganizations(ctx, term)
	})
}

func (r *RateLimited) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) ([]Pipeline, error) {
		return r.inner.ListPipelines(ctx)
	})
}

func (r *RateLimited) GetPipeline(ctx context.Context, id int64) (json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) (json.RawMessage, error) {
		return r.inner.GetPipeline(ctx, id)
	})
}

func (r *RateLimited) ListStages(ctx context.Context, pipelineID int64) ([]Stage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) ([]Stage, error) {
		return r.inner.ListStages(ctx, pipelineID)
	})
}

func (r *RateLimited) SearchLeads(ctx context.Context, term string) (json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) (json.RawMessage, error) {
		return r.inner.SearchLeads(ctx, term)
	})
}

func (r *RateLimited) SearchItems(ctx context.Context, term string, itemTypes string) (json.RawMessage, error) {
	return ratelimit.Schedule(ctx, r.d, func(ctx context.Context) (json.RawMessage, error) {
		return r.inner.SearchItems(ctx, term, itemTypes)
	})
}

var _ Client = (*RateLimited)(nil)
