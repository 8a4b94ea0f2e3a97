package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/pipedrive-mcp-server-go/mcpservice"
)

type noArgs struct{}

type dealIDArgs struct {
	DealID int64 `json:"dealId" jsonschema:"description=Pipedrive deal ID"`
}

type personIDArgs struct {
	PersonID int64 `json:"personId" jsonschema:"description=Pipedrive person ID"`
}

type organizationIDArgs struct {
	OrganizationID int64 `json:"organizationId" jsonschema:"description=Pipedrive organization ID"`
}

type pipelineIDArgs struct {
	PipelineID int64 `json:"pipelineId" jsonschema:"description=Pipedrive pipeline ID"`
}

// rawTool builds a tool that returns the downstream data member as indented JSON.
func rawTool[A any](ts *toolset, name, description string, doing func(A) string, call func(context.Context, A) (json.RawMessage, error)) mcpservice.StaticTool {
	return mcpservice.NewTool(name, func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[A]) error {
		args := r.Args()
		data, err := call(ctx, args)
		if err != nil {
			return ts.fail(ctx, w, doing(args), err)
		}
		return w.AppendJSON(data)
	}, mcpservice.WithToolDescription(description))
}

func constDoing[A any](s string) func(A) string {
	return func(A) string { return s }
}

func (ts *toolset) getDeal() mcpservice.StaticTool {
	return rawTool(ts, "get-deal", "Get a specific deal by ID including custom fields",
		func(a dealIDArgs) string { return fmt.Sprintf("Error fetching deal %d", a.DealID) },
		func(ctx context.Context, a dealIDArgs) (json.RawMessage, error) { return ts.client.GetDeal(ctx, a.DealID) })
}

func (ts *toolset) getPersons() mcpservice.StaticTool {
	return rawTool(ts, "get-persons", "Get all persons from Pipedrive including custom fields",
		constDoing[noArgs]("Error fetching persons"),
		func(ctx context.Context, _ noArgs) (json.RawMessage, error) { return ts.client.ListPersons(ctx) })
}

func (ts *toolset) getPerson() mcpservice.StaticTool {
	return rawTool(ts, "get-person", "Get a specific person by ID including custom fields",
		func(a personIDArgs) string { return fmt.Sprintf("Error fetching person %d", a.PersonID) },
		func(ctx context.Context, a personIDArgs) (json.RawMessage, error) { return ts.client.GetPerson(ctx, a.PersonID) })
}

func (ts *toolset) getOrganizations() mcpservice.StaticTool {
	return rawTool(ts, "get-organizations", "Get all organizations from Pipedrive including custom fields",
		constDoing[noArgs]("Error fetching organizations"),
		func(ctx context.Context, _ noArgs) (json.RawMessage, error) { return ts.client.ListOrganizations(ctx) })
}

func (ts *toolset) getOrganization() mcpservice.StaticTool {
	return rawTool(ts, "get-organization", "Get a specific organization by ID including custom fields",
		func(a organizationIDArgs) string { return fmt.Sprintf("Error fetching organization %d", a.OrganizationID) },
		func(ctx context.Context, a organizationIDArgs) (json.RawMessage, error) {
			return ts.client.GetOrganization(ctx, a.OrganizationID)
		})
}

func (ts *toolset) getPipelines() mcpservice.StaticTool {
	return mcpservice.NewTool("get-pipelines", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[noArgs]) error {
		pipelines, err := ts.client.ListPipelines(ctx)
		if err != nil {
			return ts.fail(ctx, w, "Error fetching pipelines", err)
		}
		return w.AppendJSON(pipelines)
	}, mcpservice.WithToolDescription("Get all pipelines from Pipedrive"))
}

func (ts *toolset) getPipeline() mcpservice.StaticTool {
	return rawTool(ts, "get-pipeline", "Get a specific pipeline by ID",
		func(a pipelineIDArgs) string { return fmt.Sprintf("Error fetching pipeline %d", a.PipelineID) },
		func(ctx context.Context, a pipelineIDArgs) (json.RawMessage, error) { return ts.client.GetPipeline(ctx, a.PipelineID) })
}
