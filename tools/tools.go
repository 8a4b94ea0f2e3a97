// Package tools registers the Pipedrive tools exposed over MCP.
//
// Every tool reaches Pipedrive through the pipedrive.Client it is given, so
// wrapping that client with pipedrive.NewRateLimited is what subjects tool
// calls to the shared dispatcher. Downstream failures never escape as Go
// errors: they become isError results whose text reads "Error <doing X>: <msg>".
package tools

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ggoodman/pipedrive-mcp-server-go/mcpservice"
	"github.com/ggoodman/pipedrive-mcp-server-go/pipedrive"
)

// MsgTermTooShort is reported when a search term has fewer than two
// characters after trimming.
const MsgTermTooShort = "Search term must be at least 2 characters"

// Option configures the tool set.
type Option func(*toolset)

// WithLogger sets the logger used for downstream failures.
func WithLogger(l *slog.Logger) Option {
	return func(ts *toolset) {
		if l != nil {
			ts.log = l
		}
	}
}

// WithClock overrides the time source used for date-window filtering.
func WithClock(now func() time.Time) Option {
	return func(ts *toolset) {
		if now != nil {
			ts.now = now
		}
	}
}

type toolset struct {
	client pipedrive.Client
	log    *slog.Logger
	now    func() time.Time
}

// All returns the sixteen Pipedrive tools in listing order.
func All(client pipedrive.Client, opts ...Option) []mcpservice.StaticTool {
	ts := &toolset{
		client: client,
		log:    slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}

	return []mcpservice.StaticTool{
		ts.getUsers(),
		ts.getDeals(),
		ts.getDeal(),
		ts.getDealNotes(),
		ts.searchDeals(),
		ts.getPersons(),
		ts.getPerson(),
		ts.searchPersons(),
		ts.getOrganizations(),
		ts.getOrganization(),
		ts.searchOrganizations(),
		ts.getPipelines(),
		ts.getPipeline(),
		ts.getStages(),
		ts.searchLeads(),
		ts.searchAll(),
	}
}

// NewContainer returns a ToolsContainer holding All(client, opts...).
func NewContainer(client pipedrive.Client, opts ...Option) *mcpservice.ToolsContainer {
	return mcpservice.NewToolsContainer(All(client, opts...)...)
}

// fail turns a downstream failure into an error result.
func (ts *toolset) fail(ctx context.Context, w mcpservice.ToolResponseWriter, doing string, err error) error {
	ts.log.ErrorContext(ctx, "tool.downstream.fail", slog.String("op", doing), slog.String("err", err.Error()))
	return failText(w, doing, err.Error())
}

func failText(w mcpservice.ToolResponseWriter, doing, msg string) error {
	w.SetError(true)
	return w.AppendText(doing + ": " + msg)
}

// validTerm trims term and reports whether it is long enough to search.
func validTerm(term string) (string, bool) {
	t := strings.TrimSpace(term)
	return t, len([]rune(t)) >= 2
}
