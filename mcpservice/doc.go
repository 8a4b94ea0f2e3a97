// Package mcpservice provides the static tool and prompt containers served by
// the engine.
//
// Tools are declared with a typed argument struct. The input schema is
// reflected from the struct with invopop/jsonschema and arguments are decoded
// strictly before the handler runs:
//
//	type GetDealArgs struct {
//	    DealID int64 `json:"dealId" jsonschema:"description=Pipedrive deal ID"`
//	}
//
//	tools := mcpservice.NewToolsContainer(
//	    mcpservice.NewTool("get-deal", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[GetDealArgs]) error {
//	        return w.AppendJSON(lookup(ctx, r.Args().DealID))
//	    }, mcpservice.WithToolDescription("Get a specific deal by ID")),
//	)
package mcpservice
