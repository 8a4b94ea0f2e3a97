package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ggoodman/pipedrive-mcp-server-go/mcp"
)

type searchArgs struct {
	Term  string `json:"term" jsonschema:"description=Search term,minLength=2"`
	Limit *int   `json:"limit,omitempty" jsonschema:"description=Max results"`
}

type emptyArgs struct{}

func newSearchTool() StaticTool {
	return NewTool("search", func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[searchArgs]) error {
		limit := 10
		if r.Args().Limit != nil {
			limit = *r.Args().Limit
		}
		return w.AppendJSON(map[string]any{"term": r.Args().Term, "limit": limit})
	}, WithToolDescription("search things"))
}

func TestNewTool_SchemaReflectsArguments(t *testing.T) {
	tool := newSearchTool()
	s := tool.Descriptor.InputSchema
	if s.Type != "object" {
		t.Fatalf("expected object schema, got %q", s.Type)
	}
	if len(s.Required) != 1 || s.Required[0] != "term" {
		t.Fatalf("expected required [term], got %v", s.Required)
	}
	term, ok := s.Properties["term"]
	if !ok {
		t.Fatalf("missing term property: %+v", s.Properties)
	}
	if term.Type != "string" || term.Description != "Search term" {
		t.Fatalf("unexpected term property: %+v", term)
	}
	if term.MinLength == nil || *term.MinLength != 2 {
		t.Fatalf("expected minLength 2, got %v", term.MinLength)
	}
	if _, ok := s.Properties["limit"]; !ok {
		t.Fatalf("missing limit property")
	}
	if tool.Descriptor.Description != "search things" {
		t.Fatalf("unexpected description %q", tool.Descriptor.Description)
	}
}

func TestNewTool_DecodesAndWritesJSON(t *testing.T) {
	c := NewToolsContainer(newSearchTool())
	res, err := c.Call(context.Background(), &mcp.CallToolRequestReceived{
		Name:      "search",
		Arguments: json.RawMessage(`{"term":"acme","limit":3}`),
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if len(res.Content) != 1 || res.Content[0].Type != "text" {
		t.Fatalf("unexpected content: %+v", res.Content)
	}
	want := "{\n  \"limit\": 3,\n  \"term\": \"acme\"\n}"
	if res.Content[0].Text != want {
		t.Fatalf("got %q want %q", res.Content[0].Text, want)
	}
}

func TestNewTool_InvalidArguments(t *testing.T) {
	c := NewToolsContainer(newSearchTool())
	cases := map[string]string{
		"missing required": `{}`,
		"null required":    `{"term":null}`,
		"unknown field":    `{"term":"x","bogus":1}`,
		"wrong type":       `{"term":5}`,
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := c.Call(context.Background(), &mcp.CallToolRequestReceived{Name: "search", Arguments: json.RawMessage(args)})
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if !res.IsError {
				t.Fatalf("expected error result for %s", args)
			}
			if !strings.HasPrefix(res.Content[0].Text, "invalid arguments:") {
				t.Fatalf("unexpected text %q", res.Content[0].Text)
			}
		})
	}
}

func TestNewTool_AllowAdditionalProperties(t *testing.T) {
	tool := NewTool("search", func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[searchArgs]) error {
		return w.AppendText(r.Args().Term)
	}, WithToolAllowAdditionalProperties(true))
	c := NewToolsContainer(tool)
	res, err := c.Call(context.Background(), &mcp.CallToolRequestReceived{Name: "search", Arguments: json.RawMessage(`{"term":"acme","bogus":1}`)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.IsError || res.Content[0].Text != "acme" {
		t.Fatalf("unknown field should be ignored, got %+v", res)
	}
	res, _ = c.Call(context.Background(), &mcp.CallToolRequestReceived{Name: "search", Arguments: json.RawMessage(`{"bogus":1}`)})
	if !res.IsError {
		t.Fatalf("required fields are still enforced, got %+v", res)
	}
}

func TestNewTool_EmptyArgumentsAccepted(t *testing.T) {
	called := false
	tool := NewTool("noop", func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[emptyArgs]) error {
		called = true
		return w.AppendText("ok")
	})
	c := NewToolsContainer(tool)
	for _, raw := range []json.RawMessage{nil, json.RawMessage("null"), json.RawMessage("{}")} {
		called = false
		res, err := c.Call(context.Background(), &mcp.CallToolRequestReceived{Name: "noop", Arguments: raw})
		if err != nil || res.IsError || !called {
			t.Fatalf("args %q: err=%v res=%+v called=%v", raw, err, res, called)
		}
	}
}

func TestNewTool_HandlerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	tool := NewTool("fail", func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[emptyArgs]) error {
		return boom
	})
	c := NewToolsContainer(tool)
	_, err := c.Call(context.Background(), &mcp.CallToolRequestReceived{Name: "fail"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestToolsContainer_UnknownTool(t *testing.T) {
	c := NewToolsContainer()
	_, err := c.Call(context.Background(), &mcp.CallToolRequestReceived{Name: "nope"})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestToolsContainer_DuplicateNamesIgnored(t *testing.T) {
	c := NewToolsContainer(newSearchTool())
	if c.Add(newSearchTool()) {
		t.Fatalf("duplicate add should return false")
	}
	if n := len(c.Snapshot()); n != 1 {
		t.Fatalf("expected 1 tool, got %d", n)
	}
}

func TestToolsContainer_ListToolsPaginates(t *testing.T) {
	c := NewToolsContainer()
	for i := 0; i < 5; i++ {
		c.Add(NewTool(fmt.Sprintf("t%d", i), func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[emptyArgs]) error {
			return nil
		}))
	}
	c.SetPageSize(2)

	var names []string
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatalf("pagination did not terminate")
		}
		items, next := c.ListTools(cursor)
		for _, it := range items {
			names = append(names, it.Name)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if got := strings.Join(names, ","); got != "t0,t1,t2,t3,t4" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestToolResponseWriter_FinalizedRejectsWrites(t *testing.T) {
	w := newToolResponseWriter(context.Background())
	if err := w.AppendText("a"); err != nil {
		t.Fatalf("AppendText: %v", err)
	}
	w.SetError(true)
	res := w.Result()
	if !res.IsError || len(res.Content) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if err := w.AppendText("b"); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
}

func TestErrorf(t *testing.T) {
	res := Errorf("Error fetching deal %d: %s", 7, "gone")
	if !res.IsError || res.Content[0].Text != "Error fetching deal 7: gone" {
		t.Fatalf("unexpected %+v", res)
	}
}
