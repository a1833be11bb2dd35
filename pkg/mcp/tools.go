package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/uchilka-bot/uchilka/pkg/assistant"
	"github.com/uchilka-bot/uchilka/pkg/classifier"
	"github.com/uchilka-bot/uchilka/pkg/models"
)

// Tool argument structs. Their JSON schemas are generated for tools/list.

type emptyArgs struct{}

type periodArgs struct {
	Period string `json:"period" jsonschema:"enum=today,enum=week" jsonschema_description:"Reporting period"`
}

type limitArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100" jsonschema_description:"Maximum number of rows (default 10)"`
}

type classifyArgs struct {
	Text string `json:"text" jsonschema_description:"Question text to route"`
}

type askArgs struct {
	Question string `json:"question" jsonschema_description:"Homework question"`
	Subject  string `json:"subject,omitempty" jsonschema_description:"Subject code such as math or physics (default general)"`
}

type tool struct {
	def    ToolDefinition
	handle func(ctx context.Context, raw json.RawMessage) ToolCallResult
}

var reflector = &jsonschema.Reflector{
	Anonymous:      true,
	DoNotReference: true,
	ExpandedStruct: true,
}

// inputSchema generates the JSON schema of a tool's argument struct.
func inputSchema(args any) *jsonschema.Schema {
	s := reflector.Reflect(args)
	s.Version = ""
	return s
}

func newTool(name, description string, args any, handle func(ctx context.Context, raw json.RawMessage) ToolCallResult) tool {
	return tool{
		def: ToolDefinition{
			Name:        name,
			Description: description,
			InputSchema: inputSchema(args),
		},
		handle: handle,
	}
}

func (s *Server) registry() []tool {
	tools := []tool{
		newTool("uchilka_stats", "All-time totals and question counts per subject.", &emptyArgs{}, s.handleStats),
		newTool("uchilka_period_stats", "Statistics for today or the last seven days, with a daily breakdown for the week.", &periodArgs{}, s.handlePeriod),
		newTool("uchilka_top_users", "Users who asked the most questions.", &limitArgs{}, s.handleTopUsers),
		newTool("uchilka_classify", "Show which model tier a question would be routed to and which rule decided.", &classifyArgs{}, s.handleClassify),
	}
	if s.cache != nil {
		tools = append(tools, newTool("uchilka_cache_stats", "Answer cache size, average hits and the most reused questions.", &limitArgs{}, s.handleCacheStats))
	}
	if s.asker != nil {
		tools = append(tools, newTool("uchilka_ask", "Answer a question through the full pipeline, including the cache.", &askArgs{}, s.handleAsk))
	}
	return tools
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *Server) handleStats(ctx context.Context, _ json.RawMessage) ToolCallResult {
	o, err := s.stats.Overview(ctx)
	if err != nil {
		return errorResult("Error fetching stats: " + err.Error())
	}
	subjects, err := s.stats.SubjectStats(ctx)
	if err != nil {
		return errorResult("Error fetching subject stats: " + err.Error())
	}
	return textResult(formatOverview(o, subjects))
}

func (s *Server) handlePeriod(ctx context.Context, raw json.RawMessage) ToolCallResult {
	var args periodArgs
	if err := decode(raw, &args); err != nil {
		return errorResult(err.Error())
	}

	var (
		p   models.PeriodStats
		err error
	)
	switch strings.ToLower(args.Period) {
	case "", "today":
		p, err = s.stats.Today(ctx)
	case "week":
		p, err = s.stats.Week(ctx)
	default:
		return errorResult(fmt.Sprintf("unknown period %q (use today or week)", args.Period))
	}
	if err != nil {
		return errorResult("Error fetching stats: " + err.Error())
	}
	return textResult(formatPeriod(p))
}

func (s *Server) handleTopUsers(ctx context.Context, raw json.RawMessage) ToolCallResult {
	var args limitArgs
	if err := decode(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	users, err := s.stats.TopUsers(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching top users: " + err.Error())
	}
	return textResult(formatTopUsers(users))
}

func (s *Server) handleCacheStats(ctx context.Context, raw json.RawMessage) ToolCallResult {
	var args limitArgs
	if err := decode(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	st, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	top, err := s.cache.Top(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(st, top))
}

func (s *Server) handleClassify(_ context.Context, raw json.RawMessage) ToolCallResult {
	var args classifyArgs
	if err := decode(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if strings.TrimSpace(args.Text) == "" {
		return errorResult("text is required")
	}
	d := classifier.Decide(args.Text)
	return textResult(fmt.Sprintf("tier: %s\nrule: %s\n", d.Tier, d.Rule))
}

func (s *Server) handleAsk(ctx context.Context, raw json.RawMessage) ToolCallResult {
	var args askArgs
	if err := decode(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if strings.TrimSpace(args.Question) == "" {
		return errorResult("question is required")
	}
	reply := s.asker.HandleText(ctx, assistant.Request{Subject: args.Subject, Text: args.Question})
	if !reply.Answered {
		return errorResult(reply.Text)
	}
	return textResult(reply.Text)
}
