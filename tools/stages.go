package tools

import (
	"context"
	"log/slog"

	"github.com/ggoodman/pipedrive-mcp-server-go/mcpservice"
	"github.com/ggoodman/pipedrive-mcp-server-go/pipedrive"
)

// getStages lists every pipeline and then each pipeline's stages, tagging
// stages with their pipeline_name. A pipeline whose stages cannot be fetched
// is skipped.
func (ts *toolset) getStages() mcpservice.StaticTool {
	return mcpservice.NewTool("get-stages", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[noArgs]) error {
		pipelines, err := ts.client.ListPipelines(ctx)
		if err != nil {
			return ts.fail(ctx, w, "Error fetching stages", err)
		}

		all := []pipedrive.Stage{}
		for _, p := range pipelines {
			stages, err := ts.client.ListStages(ctx, p.ID)
			if err != nil {
				ts.log.ErrorContext(ctx, "tool.stages.pipeline.fail", slog.Int64("pipeline_id", p.ID), slog.String("err", err.Error()))
				continue
			}
			for _, s := range stages {
				if s == nil {
					continue
				}
				s["pipeline_name"] = p.Name
				all = append(all, s)
			}
		}
		return w.AppendJSON(all)
	}, mcpservice.WithToolDescription("Get all stages from Pipedrive"))
}
