package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ggoodman/pipedrive-mcp-server-go/pipedrive"
)

type dealsOutput struct {
	Summary        string         `json:"summary"`
	FiltersApplied map[string]any `json:"filters_applied"`
	TotalFound     int            `json:"total_found"`
	Deals          []dealSummary  `json:"deals"`
}

func TestGetDealsListFiltersByActivityAndValue(t *testing.T) {
	var gotFilter pipedrive.DealFilter
	f := &fakeClient{listDeals: func(filter pipedrive.DealFilter) ([]pipedrive.Deal, error) {
		gotFilter = filter
		return mustDeals(t, `[
			{"id":1,"title":"Recent big","value":5000,"status":"open","last_activity_date":"2024-02-20","user_id":{"id":7,"name":"Olga"},"org_id":{"value":3,"name":"Acme"},"8f4b27fbd9dfc70d2296f23ce76987051ad7324e":"Suite"},
			{"id":2,"title":"Recent small","value":50,"status":"open","last_activity_date":"2024-02-25"},
			{"id":3,"title":"Stale","value":9000,"status":"open","last_activity_date":"2023-01-01"},
			{"id":4,"title":"Never touched","value":9000,"status":"open","last_activity_date":null}
		]`), nil
	}}

	res := call(t, f, "get-deals", `{"daysBack":30,"ownerId":7,"minValue":100}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content[0].Text)
	}
	if gotFilter != (pipedrive.DealFilter{Status: "open", Limit: 500, OwnerID: 7}) {
		t.Fatalf("filter = %+v", gotFilter)
	}

	out := decode[dealsOutput](t, res)
	if out.Summary != "Found 1 deals matching the specified filters" || out.TotalFound != 1 {
		t.Fatalf("summary = %q total = %d", out.Summary, out.TotalFound)
	}
	fa := out.FiltersApplied
	if fa["days_back"] != float64(30) || fa["filter_date"] != "2024-01-31" || fa["status"] != "open" {
		t.Fatalf("filters_applied = %v", fa)
	}
	if fa["owner_id"] != float64(7) || fa["min_value"] != float64(100) || fa["limit_applied"] != float64(500) {
		t.Fatalf("filters_applied = %v", fa)
	}
	if _, ok := fa["search_title"]; ok {
		t.Fatalf("search_title should be absent: %v", fa)
	}
	if _, ok := fa["max_value"]; ok {
		t.Fatalf("max_value should be absent: %v", fa)
	}

	d := out.Deals[0]
	if d.ID != 1 || d.OwnerName != "Olga" || d.StageName != "Unknown" || d.PipelineName != "Unknown" {
		t.Fatalf("deal = %+v", d)
	}
	if d.OrganizationName == nil || *d.OrganizationName != "Acme" || d.PersonName != nil {
		t.Fatalf("deal names = %+v", d)
	}
	if string(d.BookingDetails) != `"Suite"` {
		t.Fatalf("booking = %s", d.BookingDetails)
	}
	if d.Notes == nil {
		t.Fatalf("notes should be an empty array")
	}
}

func TestGetDealsSearchAppliesClientSideFilters(t *testing.T) {
	var gotTerm string
	f := &fakeClient{searchDeals: func(term string) (json.RawMessage, error) {
		gotTerm = term
		return json.RawMessage(`{"items":[
			{"item":{"id":1,"title":"Acme renewal","value":100,"status":"open","stage":{"id":4,"name":"Proposal"},"owner":{"id":7}}},
			{"item":{"id":2,"title":"Acme lost","value":100,"status":"lost","stage":{"id":4,"name":"Proposal"},"owner":{"id":7}}},
			{"item":{"id":3,"title":"Acme other owner","value":100,"status":"open","stage":{"id":4,"name":"Proposal"},"owner":{"id":8}}},
			{"item":{"id":4,"title":"Acme other stage","value":100,"status":"open","stage":{"id":5,"name":"Won"},"owner":{"id":7}}}
		]}`), nil
	}}

	res := call(t, f, "get-deals", `{"searchTitle":"Acme","ownerId":7,"stageId":4}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content[0].Text)
	}
	if gotTerm != "Acme" {
		t.Fatalf("term = %q", gotTerm)
	}
	out := decode[dealsOutput](t, res)
	if out.Summary != `Found 1 deals matching title search "Acme"` {
		t.Fatalf("summary = %q", out.Summary)
	}
	if len(out.Deals) != 1 || out.Deals[0].ID != 1 || out.Deals[0].StageName != "Proposal" {
		t.Fatalf("deals = %+v", out.Deals)
	}
	fa := out.FiltersApplied
	if fa["search_title"] != "Acme" {
		t.Fatalf("filters_applied = %v", fa)
	}
	if _, ok := fa["days_back"]; ok {
		t.Fatalf("days_back should be absent when searching: %v", fa)
	}
	if _, ok := fa["filter_date"]; ok {
		t.Fatalf("filter_date should be absent when searching: %v", fa)
	}
}

func TestGetDealsLimitsAndSummarizesAtMostThirty(t *testing.T) {
	var items []string
	for i := 1; i <= 40; i++ {
		items = append(items, fmt.Sprintf(`{"id":%d,"title":"d%d","status":"open","last_activity_date":"2024-02-28"}`, i, i))
	}
	f := &fakeClient{listDeals: func(pipedrive.DealFilter) ([]pipedrive.Deal, error) {
		return mustDeals(t, "["+strings.Join(items, ",")+"]"), nil
	}}

	out := decode[dealsOutput](t, call(t, f, "get-deals", `{}`))
	if out.TotalFound != 40 || len(out.Deals) != 30 {
		t.Fatalf("total = %d summarized = %d", out.TotalFound, len(out.Deals))
	}

	out = decode[dealsOutput](t, call(t, f, "get-deals", `{"limit":5}`))
	if out.TotalFound != 5 || len(out.Deals) != 5 || out.FiltersApplied["limit_applied"] != float64(5) {
		t.Fatalf("limited output = %+v", out)
	}
}

func TestGetDealsRejectsUnknownStatus(t *testing.T) {
	res := call(t, &fakeClient{}, "get-deals", `{"status":"pending"}`)
	if !res.IsError || !strings.HasPrefix(res.Content[0].Text, "invalid arguments: ") {
		t.Fatalf("got %+v", res)
	}
}

func TestGetDealNotes(t *testing.T) {
	var gotLimit int
	f := &fakeClient{
		getDeal: func(id int64) (json.RawMessage, error) {
			return json.RawMessage(`{"id":9,"8f4b27fbd9dfc70d2296f23ce76987051ad7324e":{"room":"4B"}}`), nil
		},
		listDealNotes: func(dealID int64, limit int) ([]json.RawMessage, error) {
			gotLimit = limit
			return []json.RawMessage{json.RawMessage(`{"id":1,"content":"called"}`), json.RawMessage(`{"id":2,"content":"emailed"}`)}, nil
		},
	}
	res := call(t, f, "get-deal-notes", `{"dealId":9}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content[0].Text)
	}
	if gotLimit != 20 {
		t.Fatalf("limit = %d, want default 20", gotLimit)
	}
	out := decode[map[string]any](t, res)
	if out["summary"] != "Retrieved 2 notes and booking details for deal 9" {
		t.Fatalf("summary = %v", out["summary"])
	}
	if bd, ok := out["booking_details"].(map[string]any); !ok || bd["room"] != "4B" {
		t.Fatalf("booking_details = %v", out["booking_details"])
	}
	if _, ok := out["deal_error"]; ok {
		t.Fatalf("unexpected deal_error")
	}
}

func TestGetDealNotesPartialFailures(t *testing.T) {
	f := &fakeClient{
		getDeal: func(int64) (json.RawMessage, error) { return nil, errors.New("deal down") },
		listDealNotes: func(int64, int) ([]json.RawMessage, error) {
			return nil, errors.New("notes down")
		},
	}
	res := call(t, f, "get-deal-notes", `{"dealId":9,"limit":5}`)
	if res.IsError {
		t.Fatalf("partial failures must not fail the call: %s", res.Content[0].Text)
	}
	out := decode[map[string]any](t, res)
	if out["deal_error"] != "deal down" || out["notes_error"] != "notes down" {
		t.Fatalf("errors = %v / %v", out["deal_error"], out["notes_error"])
	}
	if out["booking_details"] != nil {
		t.Fatalf("booking_details = %v", out["booking_details"])
	}
	if notes, ok := out["notes"].([]any); !ok || len(notes) != 0 {
		t.Fatalf("notes = %v", out["notes"])
	}
	if out["summary"] != "Retrieved 0 notes and booking details for deal 9" {
		t.Fatalf("summary = %v", out["summary"])
	}
}
