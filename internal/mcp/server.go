package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
	"github.com/devricklin/feedback-monitor/internal/biz/usecase"
)

const defaultHours = 24

// Server exposes stored feedback and digest history as MCP tools
type Server struct {
	server     *mcp.Server
	feedbackUC *usecase.FeedbackUsecase
	runs       repo.DigestRunRepo
}

// NewServer creates a new feedback MCP server
func NewServer(feedbackUC *usecase.FeedbackUsecase, runs repo.DigestRunRepo, version string) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "feedback-monitor",
			Version: version,
		}, nil),
		feedbackUC: feedbackUC,
		runs:       runs,
	}
	s.registerTools()
	return s
}

// registerTools registers all feedback query tools
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "feedback_stats",
		Description: "Aggregate classified feedback over a lookback window: totals, actionable count, and counts by sentiment, feedback type and product.",
	}, s.handleStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "feedback_list",
		Description: "List classified feedback in a lookback window, oldest first, optionally only messages mentioning one product.",
	}, s.handleList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "feedback_actionable",
		Description: "List feedback the classifier marked actionable, newest first.",
	}, s.handleActionable)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "feedback_negative",
		Description: "List negative and mixed-sentiment feedback, newest first.",
	}, s.handleNegative)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "feedback_by_type",
		Description: "List feedback of one category (bug, feature_request, praise, complaint, question, general), newest first.",
	}, s.handleByType)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "digest_history",
		Description: "List recent digest runs with their trigger, window, message count and outcome.",
	}, s.handleDigestHistory)
}

// Run serves MCP over stdio until ctx is done
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// WindowInput selects a lookback window
type WindowInput struct {
	Hours   int  `json:"hours,omitempty" jsonschema:"Lookback window in hours (default 24)"`
	AllTime bool `json:"all_time,omitempty" jsonschema:"Ignore the window and include all stored feedback"`
}

// StatsOutput contains aggregated statistics
type StatsOutput struct {
	Since       string         `json:"since,omitempty"`
	Total       int            `json:"total"`
	Actionable  int            `json:"actionable_count"`
	BySentiment map[string]int `json:"by_sentiment,omitempty"`
	ByType      map[string]int `json:"by_type,omitempty"`
	ByApp       map[string]int `json:"by_app,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func (s *Server) handleStats(ctx context.Context, req *mcp.CallToolRequest, input WindowInput) (*mcp.CallToolResult, StatsOutput, error) {
	stats, err := s.feedbackUC.Stats(ctx, hoursWindow(input.Hours, input.AllTime))
	if err != nil {
		return nil, StatsOutput{Error: err.Error()}, nil
	}
	out := StatsOutput{
		Total:       stats.Total,
		Actionable:  stats.Actionable,
		BySentiment: make(map[string]int, len(stats.BySentiment)),
		ByType:      make(map[string]int, len(stats.ByType)),
		ByApp:       stats.ByApp,
	}
	if !stats.Since.IsZero() {
		out.Since = formatTime(stats.Since)
	}
	for k, v := range stats.BySentiment {
		out.BySentiment[string(k)] = v
	}
	for k, v := range stats.ByType {
		out.ByType[string(k)] = v
	}
	return nil, out, nil
}

// ListInput filters feedback by window and product
type ListInput struct {
	Hours   int    `json:"hours,omitempty" jsonschema:"Lookback window in hours (default 24)"`
	AllTime bool   `json:"all_time,omitempty" jsonschema:"Ignore the window and include all stored feedback"`
	App     string `json:"app,omitempty" jsonschema:"Only feedback mentioning this product"`
}

// LimitInput selects a window and result cap
type LimitInput struct {
	Hours   int  `json:"hours,omitempty" jsonschema:"Lookback window in hours (default 24)"`
	AllTime bool `json:"all_time,omitempty" jsonschema:"Ignore the window and include all stored feedback"`
	Limit   int  `json:"limit,omitempty" jsonschema:"Maximum number of records (default 50)"`
}

// TypeInput selects a feedback category
type TypeInput struct {
	FeedbackType string `json:"feedback_type" jsonschema:"One of bug, feature_request, praise, complaint, question, general"`
	Hours        int    `json:"hours,omitempty" jsonschema:"Lookback window in hours (default 24)"`
	AllTime      bool   `json:"all_time,omitempty" jsonschema:"Ignore the window and include all stored feedback"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Maximum number of records (default 50)"`
}

// FeedbackItem is one classified message
type FeedbackItem struct {
	MessageID    string   `json:"message_id"`
	ChannelName  string   `json:"channel_name"`
	AuthorName   string   `json:"author_name"`
	Content      string   `json:"content"`
	Apps         []string `json:"apps"`
	Sentiment    string   `json:"sentiment"`
	FeedbackType string   `json:"feedback_type"`
	Summary      string   `json:"summary"`
	Actionable   bool     `json:"actionable"`
	Timestamp    string   `json:"timestamp"`
}

// FeedbackOutput contains matching feedback records
type FeedbackOutput struct {
	Feedback []FeedbackItem `json:"feedback"`
	Count    int            `json:"count"`
	Error    string         `json:"error,omitempty"`
}

func (s *Server) handleList(ctx context.Context, req *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, FeedbackOutput, error) {
	records, err := s.feedbackUC.List(ctx, hoursWindow(input.Hours, input.AllTime), input.App)
	return nil, feedbackOutput(records, err), nil
}

func (s *Server) handleActionable(ctx context.Context, req *mcp.CallToolRequest, input LimitInput) (*mcp.CallToolResult, FeedbackOutput, error) {
	records, err := s.feedbackUC.Actionable(ctx, hoursWindow(input.Hours, input.AllTime), input.Limit)
	return nil, feedbackOutput(records, err), nil
}

func (s *Server) handleNegative(ctx context.Context, req *mcp.CallToolRequest, input LimitInput) (*mcp.CallToolResult, FeedbackOutput, error) {
	records, err := s.feedbackUC.Negative(ctx, hoursWindow(input.Hours, input.AllTime), input.Limit)
	return nil, feedbackOutput(records, err), nil
}

func (s *Server) handleByType(ctx context.Context, req *mcp.CallToolRequest, input TypeInput) (*mcp.CallToolResult, FeedbackOutput, error) {
	records, err := s.feedbackUC.ByType(ctx, hoursWindow(input.Hours, input.AllTime), input.FeedbackType, input.Limit)
	return nil, feedbackOutput(records, err), nil
}

// HistoryInput caps the number of digest runs returned
type HistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs (default 20)"`
}

// RunItem is one recorded digest run
type RunItem struct {
	ID           string `json:"id"`
	Trigger      string `json:"trigger"`
	WindowStart  string `json:"window_start"`
	WindowEnd    string `json:"window_end"`
	MessageCount int    `json:"message_count"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	Destination  string `json:"destination,omitempty"`
}

// HistoryOutput contains recent digest runs
type HistoryOutput struct {
	Runs  []RunItem `json:"runs"`
	Error string    `json:"error,omitempty"`
}

func (s *Server) handleDigestHistory(ctx context.Context, req *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	runs, err := s.runs.List(ctx, limit)
	if err != nil {
		return nil, HistoryOutput{Error: err.Error()}, nil
	}
	out := HistoryOutput{Runs: make([]RunItem, 0, len(runs))}
	for _, run := range runs {
		out.Runs = append(out.Runs, RunItem{
			ID:           run.ID,
			Trigger:      string(run.Trigger),
			WindowStart:  formatTime(run.WindowStart),
			WindowEnd:    formatTime(run.WindowEnd),
			MessageCount: run.MessageCount,
			Status:       run.Status,
			Error:        run.Error,
			Destination:  run.Destination,
		})
	}
	return nil, out, nil
}

func feedbackOutput(records []*domain.FeedbackRecord, err error) FeedbackOutput {
	out := FeedbackOutput{Feedback: make([]FeedbackItem, 0, len(records))}
	if err != nil {
		out.Error = err.Error()
		return out
	}
	for _, rec := range records {
		out.Feedback = append(out.Feedback, FeedbackItem{
			MessageID:    rec.MessageID,
			ChannelName:  rec.ChannelName,
			AuthorName:   rec.AuthorName,
			Content:      rec.Content,
			Apps:         rec.AppsMentioned,
			Sentiment:    string(rec.Sentiment),
			FeedbackType: string(rec.FeedbackType),
			Summary:      rec.Summary,
			Actionable:   rec.Actionable,
			Timestamp:    formatTime(rec.MessageTimestamp),
		})
	}
	out.Count = len(out.Feedback)
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// hoursWindow maps the window arguments to a duration; zero means all time
func hoursWindow(hours int, allTime bool) time.Duration {
	if allTime {
		return 0
	}
	if hours <= 0 {
		hours = defaultHours
	}
	return time.Duration(hours) * time.Hour
}
