// Package mcp implements a Model Context Protocol server that exposes the
// sentbench engine as tools
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/constantino-dev/sentbench/pkg/types"
)

const defaultNeighbors = 5

// Engine is the part of core.Engine the tools use
type Engine interface {
	Model() string
	Tokenize(text string) types.Sentence
	Embed(ctx context.Context, sentences []types.Sentence) ([]types.Vector, error)
	Similarity(ctx context.Context, a, b types.Sentence) (float64, error)
	Nearest(ctx context.Context, s types.Sentence, k int) ([]types.Neighbor, error)
	ListRuns(limit int) ([]*types.Run, error)
}

// Server implements the MCP protocol over a line-delimited stream
type Server struct {
	engine Engine
	reader *bufio.Reader
	writer io.Writer
	log    zerolog.Logger
}

// NewServer creates a new MCP server reading requests from r and writing
// responses to w
func NewServer(engine Engine, r io.Reader, w io.Writer, log zerolog.Logger) *Server {
	return &Server{
		engine: engine,
		reader: bufio.NewReader(r),
		writer: w,
		log:    log.With().Str("component", "mcp").Logger(),
	}
}

// JSON-RPC structures
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MCP-specific structures
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ServerCapabilities struct {
	Tools map[string]interface{} `json:"tools,omitempty"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Run serves requests until the input ends or ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimSpace(line)
		if line != "" {
			var req Request
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				s.sendError(nil, -32700, "Parse error")
			} else {
				s.handleRequest(ctx, &req)
			}
		}

		if eof {
			return nil
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req *Request) {
	s.log.Debug().Str("method", req.Method).Msg("request")

	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(ctx, req)
	case "notifications/initialized":
		// Client acknowledged initialization, no response needed
	default:
		s.sendError(req.ID, -32601, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *Request) {
	result := InitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities: ServerCapabilities{
			Tools: map[string]interface{}{},
		},
		ServerInfo: ServerInfo{
			Name:    "sentbench",
			Version: "0.1.0",
		},
	}
	s.sendResult(req.ID, result)
}

func stringProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func (s *Server) handleToolsList(req *Request) {
	tools := []Tool{
		{
			Name:        "sentbench_embed",
			Description: "Embed one or more sentences with the configured embedding model and return the vectors.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"sentences": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Sentences to embed",
					},
				},
				"required": []string{"sentences"},
			},
		},
		{
			Name:        "sentbench_similarity",
			Description: "Cosine similarity between the embeddings of two sentences.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"a": stringProp("First sentence"),
					"b": stringProp("Second sentence"),
				},
				"required": []string{"a", "b"},
			},
		},
		{
			Name:        "sentbench_nearest",
			Description: "Find previously embedded sentences closest to the given sentence.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"sentence": stringProp("Query sentence"),
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of results",
						"default":     defaultNeighbors,
					},
				},
				"required": []string{"sentence"},
			},
		},
		{
			Name:        "sentbench_runs",
			Description: "List recent evaluation runs and their status.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of runs",
						"default":     10,
					},
				},
			},
		},
	}

	s.sendResult(req.ID, ToolsListResult{Tools: tools})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params")
		return
	}

	var result string
	var isError bool

	switch params.Name {
	case "sentbench_embed":
		result, isError = s.toolEmbed(ctx, params.Arguments)
	case "sentbench_similarity":
		result, isError = s.toolSimilarity(ctx, params.Arguments)
	case "sentbench_nearest":
		result, isError = s.toolNearest(ctx, params.Arguments)
	case "sentbench_runs":
		result, isError = s.toolRuns(params.Arguments)
	default:
		s.sendError(req.ID, -32601, fmt.Sprintf("Unknown tool: %s", params.Name))
		return
	}

	s.sendResult(req.ID, ToolResult{
		Content: []ContentBlock{{Type: "text", Text: result}},
		IsError: isError,
	})
}

func (s *Server) toolEmbed(ctx context.Context, args map[string]interface{}) (string, bool) {
	raw, _ := args["sentences"].([]interface{})
	var batch []types.Sentence
	for _, r := range raw {
		if text, ok := r.(string); ok {
			batch = append(batch, s.engine.Tokenize(text))
		}
	}
	if len(batch) == 0 {
		return "Error: sentences is required", true
	}

	vecs, err := s.engine.Embed(ctx, batch)
	if err != nil {
		return fmt.Sprintf("Error embedding: %v", err), true
	}

	data, err := json.Marshal(map[string]interface{}{
		"model":   s.engine.Model(),
		"vectors": vecs,
	})
	if err != nil {
		return fmt.Sprintf("Error encoding vectors: %v", err), true
	}
	return string(data), false
}

func (s *Server) toolSimilarity(ctx context.Context, args map[string]interface{}) (string, bool) {
	a, _ := args["a"].(string)
	b, _ := args["b"].(string)
	if a == "" || b == "" {
		return "Error: a and b are required", true
	}

	sim, err := s.engine.Similarity(ctx, s.engine.Tokenize(a), s.engine.Tokenize(b))
	if err != nil {
		return fmt.Sprintf("Error computing similarity: %v", err), true
	}
	return strconv.FormatFloat(sim, 'f', 6, 64), false
}

func (s *Server) toolNearest(ctx context.Context, args map[string]interface{}) (string, bool) {
	sentence, _ := args["sentence"].(string)
	if sentence == "" {
		return "Error: sentence is required", true
	}
	limit := defaultNeighbors
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	hits, err := s.engine.Nearest(ctx, s.engine.Tokenize(sentence), limit)
	if err != nil {
		return fmt.Sprintf("Error searching: %v", err), true
	}
	if len(hits) == 0 {
		return "No embedded sentences found.", false
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d similar sentences:\n\n", len(hits)))
	for i, h := range hits {
		sb.WriteString(fmt.Sprintf("[%d] %.4f %s\n", i+1, 1-h.Distance, h.Text))
	}
	return sb.String(), false
}

func (s *Server) toolRuns(args map[string]interface{}) (string, bool) {
	limit := 10
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	runs, err := s.engine.ListRuns(limit)
	if err != nil {
		return fmt.Sprintf("Error listing runs: %v", err), true
	}
	if len(runs) == 0 {
		return "No evaluation runs found.", false
	}

	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(fmt.Sprintf("%s %s %s [%s]", r.ID, r.Status, r.Model, strings.Join(r.Tasks, ",")))
		if r.Error != "" {
			sb.WriteString(" error: " + r.Error)
		}
		sb.WriteString("\n")
	}
	return sb.String(), false
}

func (s *Server) sendResult(id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	s.send(resp)
}

func (s *Server) sendError(id interface{}, code int, message string) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
	s.send(resp)
}

func (s *Server) send(v interface{}) {
	data, _ := json.Marshal(v)
	fmt.Fprintln(s.writer, string(data))
}
