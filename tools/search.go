package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ggoodman/pipedrive-mcp-server-go/mcpservice"
)

type searchDealsArgs struct {
	Term string `json:"term" jsonschema:"description=Search term for deals,minLength=2"`
}

type searchPersonsArgs struct {
	Term string `json:"term" jsonschema:"description=Search term for persons"`
}

type searchOrganizationsArgs struct {
	Term string `json:"term" jsonschema:"description=Search term for organizations,minLength=2"`
}

type searchLeadsArgs struct {
	Term string `json:"term" jsonschema:"description=Search term for leads,minLength=2"`
}

type searchAllArgs struct {
	Term      string `json:"term" jsonschema:"description=Search term,minLength=2"`
	ItemTypes string `json:"itemTypes,omitempty" jsonschema_description:"Comma-separated list of item types to search (deal,person,organization,product,file,activity,lead)"`
}

// termTool builds a search tool that rejects terms shorter than two
// characters after trimming and searches with the trimmed term.
func termTool[A any](ts *toolset, name, description, doing string, term func(A) string, call func(ctx context.Context, term string, a A) (json.RawMessage, error)) mcpservice.StaticTool {
	return mcpservice.NewTool(name, func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[A]) error {
		args := r.Args()
		t, ok := validTerm(term(args))
		if !ok {
			ts.log.WarnContext(ctx, "tool.term.invalid", slog.String("tool", name))
			return failText(w, doing, MsgTermTooShort)
		}
		data, err := call(ctx, t, args)
		if err != nil {
			return ts.fail(ctx, w, doing, err)
		}
		return w.AppendJSON(data)
	}, mcpservice.WithToolDescription(description))
}

func (ts *toolset) searchDeals() mcpservice.StaticTool {
	return termTool(ts, "search-deals", "Search deals by term", "Error searching deals",
		func(a searchDealsArgs) string { return a.Term },
		func(ctx context.Context, term string, _ searchDealsArgs) (json.RawMessage, error) {
			return ts.client.SearchDeals(ctx, term)
		})
}

// searchPersons passes the term through as given; it has no minimum length.
func (ts *toolset) searchPersons() mcpservice.StaticTool {
	return rawTool(ts, "search-persons", "Search persons by term",
		constDoing[searchPersonsArgs]("Error searching persons"),
		func(ctx context.Context, a searchPersonsArgs) (json.RawMessage, error) {
			return ts.client.SearchPersons(ctx, a.Term)
		})
}

func (ts *toolset) searchOrganizations() mcpservice.StaticTool {
	return termTool(ts, "search-organizations", "Search organizations by term", "Error searching organizations",
		func(a searchOrganizationsArgs) string { return a.Term },
		func(ctx context.Context, term string, _ searchOrganizationsArgs) (json.RawMessage, error) {
			return ts.client.SearchOrganizations(ctx, term)
		})
}

func (ts *toolset) searchLeads() mcpservice.StaticTool {
	return termTool(ts, "search-leads", "Search leads by term", "Error searching leads",
		func(a searchLeadsArgs) string { return a.Term },
		func(ctx context.Context, term string, _ searchLeadsArgs) (json.RawMessage, error) {
			return ts.client.SearchLeads(ctx, term)
		})
}

func (ts *toolset) searchAll() mcpservice.StaticTool {
	return termTool(ts, "search-all", "Search across all item types (deals, persons, organizations, etc.)", "Error performing search",
		func(a searchAllArgs) string { return a.Term },
		func(ctx context.Context, term string, a searchAllArgs) (json.RawMessage, error) {
			return ts.client.SearchItems(ctx, term, a.ItemTypes)
		})
}
