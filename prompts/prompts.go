// Package prompts holds the canned Pipedrive prompts. Each takes no
// arguments and renders a single user message.
package prompts

import (
	"context"

	"github.com/ggoodman/pipedrive-mcp-server-go/mcp"
	"github.com/ggoodman/pipedrive-mcp-server-go/mcpservice"
)

type definition struct {
	name        string
	description string
	text        string
}

var definitions = []definition{
	{
		name:        "list-all-deals",
		description: "List all deals in Pipedrive",
		text:        "Please list all deals in my Pipedrive account, showing their title, value, status, and stage.",
	},
	{
		name:        "list-all-persons",
		description: "List all persons in Pipedrive",
		text:        "Please list all persons in my Pipedrive account, showing their name, email, phone, and organization.",
	},
	{
		name:        "list-all-pipelines",
		description: "List all pipelines in Pipedrive",
		text:        "Please list all pipelines in my Pipedrive account, showing their name and stages.",
	},
	{
		name:        "analyze-deals",
		description: "Analyze deals by stage",
		text:        "Please analyze the deals in my Pipedrive account, grouping them by stage and providing total value for each stage.",
	},
	{
		name:        "analyze-contacts",
		description: "Analyze contacts by organization",
		text:        "Please analyze the persons in my Pipedrive account, grouping them by organization and providing a count for each organization.",
	},
	{
		name:        "analyze-leads",
		description: "Analyze leads by status",
		text:        "Please search for all leads in my Pipedrive account and group them by status.",
	},
	{
		name:        "compare-pipelines",
		description: "Compare different pipelines and their stages",
		text:        "Please list all pipelines in my Pipedrive account and compare them by showing the stages in each pipeline.",
	},
	{
		name:        "find-high-value-deals",
		description: "Find high-value deals",
		text:        "Please identify the highest value deals in my Pipedrive account and provide information about which stage they're in and which person or organization they're associated with.",
	},
}

// All returns the prompt definitions in listing order.
func All() []mcpservice.StaticPrompt {
	out := make([]mcpservice.StaticPrompt, 0, len(definitions))
	for _, d := range definitions {
		text := d.text
		out = append(out, mcpservice.StaticPrompt{
			Descriptor: mcp.Prompt{Name: d.name, Description: d.description},
			Handler: func(ctx context.Context, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
				return mcpservice.UserPrompt("", text), nil
			},
		})
	}
	return out
}

// NewContainer returns a StaticPrompts holding All().
func NewContainer() *mcpservice.StaticPrompts {
	return mcpservice.NewStaticPrompts(All()...)
}
