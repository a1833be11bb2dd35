// Package mcp exposes usage statistics and the assistant as Model Context
// Protocol tools over stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/assistant"
	"github.com/uchilka-bot/uchilka/pkg/models"
)

const serverName = "uchilka"

// Stats is the read side of the question log.
type Stats interface {
	Overview(ctx context.Context) (models.Overview, error)
	Today(ctx context.Context) (models.PeriodStats, error)
	Week(ctx context.Context) (models.PeriodStats, error)
	TopUsers(ctx context.Context, limit int) ([]models.UserActivity, error)
	SubjectStats(ctx context.Context) ([]models.SubjectCount, error)
}

// CacheStatter reports cache contents.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
	Top(ctx context.Context, limit int) ([]models.CachedQuestion, error)
}

// Asker answers a question through the assistant pipeline.
type Asker interface {
	HandleText(ctx context.Context, req assistant.Request) assistant.Reply
}

// Server is a minimal MCP server speaking newline-delimited JSON-RPC 2.0.
type Server struct {
	stats   Stats
	cache   CacheStatter
	asker   Asker
	version string
	log     *zap.Logger
	tools   []tool
}

// Option configures a Server.
type Option func(*Server)

// WithAsker enables the ask tool.
func WithAsker(a Asker) Option {
	return func(s *Server) { s.asker = a }
}

// WithLogger sets the logger. It must not write to the protocol stream.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Server. A nil cache disables the cache tools.
func New(stats Stats, cache CacheStatter, version string, opts ...Option) *Server {
	s := &Server{
		stats:   stats,
		cache:   cache,
		version: version,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tools = s.registry()
	return s
}

// Run reads requests from r line by line and writes responses to w.
// It blocks until r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}
		if req.JSONRPC != jsonrpcVersion {
			s.write(w, errorResponse(req.ID, CodeInvalidRequest, "jsonrpc must be 2.0"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
			Instructions:    "Usage statistics and cache reports for the Uchilka homework bot.",
		})
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		defs := make([]ToolDefinition, len(s.tools))
		for i, t := range s.tools {
			defs[i] = t.def
		}
		return resultResponse(req.ID, ToolsListResult{Tools: defs})
	case "tools/call":
		return s.call(ctx, req)
	}

	if req.IsNotification() {
		// notifications/initialized and friends
		return nil
	}
	return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) call(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	for _, t := range s.tools {
		if t.def.Name == params.Name {
			s.log.Debug("tool call", zap.String("tool", params.Name))
			return resultResponse(req.ID, t.handle(ctx, params.Arguments))
		}
	}
	return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error("write response", zap.Error(err))
	}
}
