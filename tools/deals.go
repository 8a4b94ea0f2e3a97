package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ggoodman/pipedrive-mcp-server-go/mcpservice"
	"github.com/ggoodman/pipedrive-mcp-server-go/pipedrive"
)

const (
	defaultDaysBack   = 365
	defaultDealStatus = "open"
	defaultDealLimit  = 500
	defaultNotesLimit = 20
	maxSummarized     = 30
)

var dealStatuses = []string{"open", "won", "lost", "deleted"}

type getDealsArgs struct {
	SearchTitle string   `json:"searchTitle,omitempty" jsonschema:"description=Search deals by title/name (partial matches supported)"`
	DaysBack    *int     `json:"daysBack,omitempty" jsonschema:"description=Number of days back to fetch deals based on last activity date (default: 365)"`
	OwnerID     *int64   `json:"ownerId,omitempty" jsonschema:"description=Filter deals by owner/user ID (use get-users tool to find IDs)"`
	StageID     *int64   `json:"stageId,omitempty" jsonschema:"description=Filter deals by stage ID"`
	Status      string   `json:"status,omitempty" jsonschema:"description=Filter deals by status (default: open),enum=open,enum=won,enum=lost,enum=deleted"`
	PipelineID  *int64   `json:"pipelineId,omitempty" jsonschema:"description=Filter deals by pipeline ID"`
	MinValue    *float64 `json:"minValue,omitempty" jsonschema:"description=Minimum deal value filter"`
	MaxValue    *float64 `json:"maxValue,omitempty" jsonschema:"description=Maximum deal value filter"`
	Limit       *int     `json:"limit,omitempty" jsonschema:"description=Maximum number of deals to return (default: 500)"`
}

type dealFilters struct {
	SearchTitle     string   `json:"search_title,omitempty"`
	DaysBack        *int     `json:"days_back,omitempty"`
	FilterDate      string   `json:"filter_date,omitempty"`
	Status          string   `json:"status"`
	OwnerID         int64    `json:"owner_id,omitempty"`
	StageID         int64    `json:"stage_id,omitempty"`
	PipelineID      int64    `json:"pipeline_id,omitempty"`
	MinValue        *float64 `json:"min_value,omitempty"`
	MaxValue        *float64 `json:"max_value,omitempty"`
	TotalDealsFound int      `json:"total_deals_found"`
	LimitApplied    int      `json:"limit_applied"`
}

type dealSummary struct {
	ID               int64             `json:"id"`
	Title            string            `json:"title"`
	Value            float64           `json:"value"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	StageName        string            `json:"stage_name"`
	PipelineName     string            `json:"pipeline_name"`
	OwnerName        string            `json:"owner_name"`
	OrganizationName *string           `json:"organization_name"`
	PersonName       *string           `json:"person_name"`
	AddTime          *string           `json:"add_time"`
	LastActivityDate *string           `json:"last_activity_date"`
	CloseTime        *string           `json:"close_time"`
	WonTime          *string           `json:"won_time"`
	LostTime         *string           `json:"lost_time"`
	NotesCount       int               `json:"notes_count"`
	Notes            []json.RawMessage `json:"notes"`
	BookingDetails   json.RawMessage   `json:"booking_details"`
}

type dealsResult struct {
	Summary        string        `json:"summary"`
	FiltersApplied dealFilters   `json:"filters_applied"`
	TotalFound     int           `json:"total_found"`
	Deals          []dealSummary `json:"deals"`
}

func (ts *toolset) getDeals() mcpservice.StaticTool {
	return mcpservice.NewTool("get-deals", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[getDealsArgs]) error {
		a := r.Args()

		daysBack := defaultDaysBack
		if a.DaysBack != nil {
			daysBack = *a.DaysBack
		}
		status := defaultDealStatus
		if a.Status != "" {
			status = a.Status
		}
		if !slices.Contains(dealStatuses, status) {
			return failText(w, "invalid arguments", fmt.Sprintf("status must be one of %s", strings.Join(dealStatuses, ", ")))
		}
		limit := defaultDealLimit
		if a.Limit != nil {
			limit = *a.Limit
		}
		ownerID, stageID, pipelineID := derefID(a.OwnerID), derefID(a.StageID), derefID(a.PipelineID)
		searching := a.SearchTitle != ""

		var deals []pipedrive.Deal
		if searching {
			data, err := ts.client.SearchDeals(ctx, a.SearchTitle)
			if err != nil {
				return ts.fail(ctx, w, "Error fetching deals", err)
			}
			if deals, err = pipedrive.SearchItems[pipedrive.Deal](data); err != nil {
				return ts.fail(ctx, w, "Error fetching deals", err)
			}
		} else {
			var err error
			deals, err = ts.client.ListDeals(ctx, pipedrive.DealFilter{
				Status:     status,
				Limit:      limit,
				OwnerID:    ownerID,
				StageID:    stageID,
				PipelineID: pipelineID,
			})
			if err != nil {
				return ts.fail(ctx, w, "Error fetching deals", err)
			}
		}

		now := ts.now()
		cutoff := now.AddDate(0, 0, -daysBack)
		deals = filterDeals(deals, func(d pipedrive.Deal) bool {
			if !searching {
				t, ok := parseActivityDate(d.LastActivityDate)
				if !ok || t.Before(cutoff) {
					return false
				}
				return inValueRange(d.Value, a.MinValue, a.MaxValue)
			}
			if ownerID != 0 && d.Owner.ID != ownerID {
				return false
			}
			if d.Status != status {
				return false
			}
			if stageID != 0 && d.Stage.ID != stageID {
				return false
			}
			if pipelineID != 0 && d.PipelineID != pipelineID {
				return false
			}
			return inValueRange(d.Value, a.MinValue, a.MaxValue)
		})
		if limit >= 0 && len(deals) > limit {
			deals = deals[:limit]
		}

		filters := dealFilters{
			Status:          status,
			OwnerID:         ownerID,
			StageID:         stageID,
			PipelineID:      pipelineID,
			MinValue:        a.MinValue,
			MaxValue:        a.MaxValue,
			TotalDealsFound: len(deals),
			LimitApplied:    limit,
		}
		summary := fmt.Sprintf("Found %d deals matching the specified filters", len(deals))
		if searching {
			filters.SearchTitle = a.SearchTitle
			summary = fmt.Sprintf("Found %d deals matching title search %q", len(deals), a.SearchTitle)
		} else {
			filters.DaysBack = &daysBack
			filters.FilterDate = now.UTC().AddDate(0, 0, -daysBack).Format(time.DateOnly)
		}

		summarized := make([]dealSummary, 0, min(len(deals), maxSummarized))
		for _, d := range deals {
			if len(summarized) == maxSummarized {
				break
			}
			summarized = append(summarized, summarizeDeal(d))
		}

		return w.AppendJSON(dealsResult{
			Summary:        summary,
			FiltersApplied: filters,
			TotalFound:     len(deals),
			Deals:          summarized,
		})
	}, mcpservice.WithToolDescription("Get deals from Pipedrive with flexible filtering options including search by title, date range, owner, stage, status, and more. Use 'get-users' tool first to find owner IDs."))
}

type dealNotesArgs struct {
	DealID int64 `json:"dealId" jsonschema:"description=Pipedrive deal ID"`
	Limit  *int  `json:"limit,omitempty" jsonschema:"description=Maximum number of notes to return (default: 20)"`
}

type dealNotesResult struct {
	Summary        string            `json:"summary"`
	DealID         int64             `json:"deal_id"`
	Notes          []json.RawMessage `json:"notes"`
	BookingDetails json.RawMessage   `json:"booking_details"`
	DealError      string            `json:"deal_error,omitempty"`
	NotesError     string            `json:"notes_error,omitempty"`
}

// getDealNotes fetches the deal and its notes independently; either half may
// fail without failing the call.
func (ts *toolset) getDealNotes() mcpservice.StaticTool {
	return mcpservice.NewTool("get-deal-notes", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[dealNotesArgs]) error {
		a := r.Args()
		limit := defaultNotesLimit
		if a.Limit != nil {
			limit = *a.Limit
		}

		res := dealNotesResult{DealID: a.DealID, Notes: []json.RawMessage{}}

		raw, err := ts.client.GetDeal(ctx, a.DealID)
		if err == nil {
			var d pipedrive.Deal
			if err = json.Unmarshal(raw, &d); err == nil {
				res.BookingDetails = d.BookingDetails
			}
		}
		if err != nil {
			ts.log.ErrorContext(ctx, "tool.deal_notes.deal.fail", slog.Int64("deal_id", a.DealID), slog.String("err", err.Error()))
			res.DealError = err.Error()
		}

		notes, err := ts.client.ListDealNotes(ctx, a.DealID, limit)
		if err != nil {
			ts.log.ErrorContext(ctx, "tool.deal_notes.notes.fail", slog.Int64("deal_id", a.DealID), slog.String("err", err.Error()))
			res.NotesError = err.Error()
		} else if notes != nil {
			res.Notes = notes
		}

		res.Summary = fmt.Sprintf("Retrieved %d notes and booking details for deal %d", len(res.Notes), a.DealID)
		return w.AppendJSON(res)
	}, mcpservice.WithToolDescription("Get detailed notes and custom booking details for a specific deal"))
}

func summarizeDeal(d pipedrive.Deal) dealSummary {
	notes := d.Notes
	if notes == nil {
		notes = []json.RawMessage{}
	}
	return dealSummary{
		ID:               d.ID,
		Title:            d.Title,
		Value:            d.Value,
		Currency:         d.Currency,
		Status:           d.Status,
		StageName:        orUnknown(d.Stage.Name),
		PipelineName:     orUnknown(d.PipelineName),
		OwnerName:        orUnknown(d.Owner.Name),
		OrganizationName: optional(d.Organization.Name),
		PersonName:       optional(d.Person.Name),
		AddTime:          optional(d.AddTime),
		LastActivityDate: optional(d.LastActivityDate),
		CloseTime:        optional(d.CloseTime),
		WonTime:          optional(d.WonTime),
		LostTime:         optional(d.LostTime),
		NotesCount:       d.NotesCount,
		Notes:            notes,
		BookingDetails:   d.BookingDetails,
	}
}

func filterDeals(deals []pipedrive.Deal, keep func(pipedrive.Deal) bool) []pipedrive.Deal {
	out := deals[:0:0]
	for _, d := range deals {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func inValueRange(v float64, lo, hi *float64) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}

// parseActivityDate accepts the date and date-time layouts Pipedrive uses,
// interpreted as UTC.
func parseActivityDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.DateOnly, time.DateTime, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func derefID(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
