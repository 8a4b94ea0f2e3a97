package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ggoodman/pipedrive-mcp-server-go/pipedrive"
)

var errUnexpected = errors.New("unexpected call")

// fakeClient answers from its function fields; a nil field fails the call.
type fakeClient struct {
	mu    sync.Mutex
	calls []string

	listUsers     func() ([]pipedrive.User, error)
	listDeals     func(pipedrive.DealFilter) ([]pipedrive.Deal, error)
	searchDeals   func(term string) (json.RawMessage, error)
	getDeal       func(id int64) (json.RawMessage, error)
	listDealNotes func(dealID int64, limit int) ([]json.RawMessage, error)
	raw           func(op string, arg any) (json.RawMessage, error)
	listPipelines func() ([]pipedrive.Pipeline, error)
	listStages    func(pipelineID int64) ([]pipedrive.Stage, error)
}

func (f *fakeClient) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *fakeClient) rawCall(op string, arg any) (json.RawMessage, error) {
	f.record(op)
	if f.raw == nil {
		return nil, errUnexpected
	}
	return f.raw(op, arg)
}

func (f *fakeClient) ListUsers(ctx context.Context) ([]pipedrive.User, error) {
	f.record("ListUsers")
	if f.listUsers == nil {
		return nil, errUnexpected
	}
	return f.listUsers()
}

func (f *fakeClient) ListDeals(ctx context.Context, filter pipedrive.DealFilter) ([]pipedrive.Deal, error) {
	f.record("ListDeals")
	if f.listDeals == nil {
		return nil, errUnexpected
	}
	return f.listDeals(filter)
}

func (f *fakeClient) SearchDeals(ctx context.Context, term string) (json.RawMessage, error) {
	f.record("SearchDeals")
	if f.searchDeals == nil {
		return nil, errUnexpected
	}
	return f.searchDeals(term)
}

func (f *fakeClient) GetDeal(ctx context.Context, id int64) (json.RawMessage, error) {
	f.record("GetDeal")
	if f.getDeal == nil {
		return nil, errUnexpected
	}
	return f.getDeal(id)
}

func (f *fakeClient) ListDealNotes(ctx context.Context, dealID int64, limit int) ([]json.RawMessage, error) {
	f.record("ListDealNotes")
	if f.listDealNotes == nil {
		return nil, errUnexpected
	}
	return f.listDealNotes(dealID, limit)
}

func (f *fakeClient) ListPersons(ctx context.Context) (json.RawMessage, error) {
	return f.rawCall("ListPersons", nil)
}

func (f *fakeClient) GetPerson(ctx context.Context, id int64) (json.RawMessage, error) {
	return f.rawCall("GetPerson", id)
}

func (f *fakeClient) SearchPersons(ctx context.Context, term string) (json.RawMessage, error) {
	return f.rawCall("SearchPersons", term)
}

func (f *fakeClient) ListOrganizations(ctx context.Context) (json.RawMessage, error) {
	return f.rawCall("ListOrganizations", nil)
}

func (f *fakeClient) GetOrganization(ctx context.Context, id int64) (json.RawMessage, error) {
	return f.rawCall("GetOrganization", id)
}

func (f *fakeClient) SearchOrganizations(ctx context.Context, term string) (json.RawMessage, error) {
	return f.rawCall("SearchOrganizations", term)
}

func (f *fakeClient) ListPipelines(ctx context.Context) ([]pipedrive.Pipeline, error) {
	f.record("ListPipelines")
	if f.listPipelines == nil {
		return nil, errUnexpected
	}
	return f.listPipelines()
}

func (f *fakeClient) GetPipeline(ctx context.Context, id int64) (json.RawMessage, error) {
	return f.rawCall("GetPipeline", id)
}

func (f *fakeClient) ListStages(ctx context.Context, pipelineID int64) ([]pipedrive.Stage, error) {
	f.record("ListStages")
	if f.listStages == nil {
		return nil, errUnexpected
	}
	return f.listStages(pipelineID)
}

func (f *fakeClient) SearchLeads(ctx context.Context, term string) (json.RawMessage, error) {
	return f.rawCall("SearchLeads", term)
}

func (f *fakeClient) SearchItems(ctx context.Context, term string, itemTypes string) (json.RawMessage, error) {
	return f.rawCall("SearchItems", [2]string{term, itemTypes})
}

var _ pipedrive.Client = (*fakeClient)(nil)
