package tools

import (
	"context"
	"fmt"

	"github.com/ggoodman/pipedrive-mcp-server-go/mcpservice"
	"github.com/ggoodman/pipedrive-mcp-server-go/pipedrive"
)

type usersResult struct {
	Summary string           `json:"summary"`
	Users   []pipedrive.User `json:"users"`
}

func (ts *toolset) getUsers() mcpservice.StaticTool {
	return mcpservice.NewTool("get-users", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[noArgs]) error {
		users, err := ts.client.ListUsers(ctx)
		if err != nil {
			return ts.fail(ctx, w, "Error fetching users", err)
		}
		if users == nil {
			users = []pipedrive.User{}
		}
		return w.AppendJSON(usersResult{
			Summary: fmt.Sprintf("Found %d users in your Pipedrive account", len(users)),
			Users:   users,
		})
	}, mcpservice.WithToolDescription("Get all users/owners from Pipedrive to identify owner IDs for filtering deals"))
}
