// Package mcp exposes the orchestrator as Model Context Protocol tools over
// JSON-RPC 2.0, on stdio or HTTP.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jonathan/resume-orchestrator/internal/service"
)

// ServerName is reported by initialize.
const ServerName = "resume-orchestrator"

// Server dispatches JSON-RPC requests to the tool set.
type Server struct {
	service *service.Service
	version string
	logger  *slog.Logger
	tools   map[string]toolHandler
}

// NewServer creates a server over svc.
func NewServer(svc *service.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{service: svc, version: version, logger: logger}
	s.tools = s.toolHandlers()
	return s
}

// Handle processes one JSON-RPC message and returns the encoded response.
// Notifications yield a nil response.
func (s *Server) Handle(ctx context.Context, payload []byte) []byte {
	var req rpcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Warn("mcp parse error", "error", err)
		return encode(rpcResponse{JSONRPC: "2.0", ID: json.RawMessage("null"), Error: &rpcError{Code: codeParseError, Message: "parse error", Data: err.Error()}})
	}
	notification := len(req.ID) == 0
	if req.Method == "" {
		if notification {
			return nil
		}
		return encode(errorResponse(req.ID, codeInvalidRequest, "invalid request", "missing method"))
	}

	result, rerr := s.dispatch(ctx, req)
	if notification {
		return nil
	}
	if rerr != nil {
		return encode(errorResponse(req.ID, rerr.Code, rerr.Message, rerr.Data))
	}
	return encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) (any, *rpcError) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": ServerName, "version": s.version},
		}, nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return map[string]any{"tools": toolDescriptors}, nil
	case "tools/call":
		var call toolCallParams
		if err := json.Unmarshal(req.Params, &call); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params", Data: err.Error()}
		}
		handler, ok := s.tools[call.Name]
		if !ok {
			return nil, &rpcError{Code: codeInvalidParams, Message: "unknown tool", Data: call.Name}
		}
		args := call.Arguments
		if len(args) == 0 || string(args) == "null" {
			args = json.RawMessage("{}")
		}
		return s.callTool(ctx, call.Name, handler, args), nil
	default:
		if strings.HasPrefix(req.Method, "notifications/") {
			return nil, nil
		}
		return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method}
	}
}

// callTool runs a tool. Failures become error results, never protocol errors.
func (s *Server) callTool(ctx context.Context, name string, handler toolHandler, args json.RawMessage) ToolResult {
	out, err := handler(ctx, args)
	if err != nil {
		s.logger.Warn("mcp tool failed", "tool", name, "error", err)
		return ToolResult{IsError: true, Content: []ToolContent{{Type: "text", Text: string(encode(map[string]string{"error": err.Error()}))}}}
	}
	return ToolResult{Content: []ToolContent{{Type: "text", Text: string(encode(out))}}}
}

func errorResponse(id json.RawMessage, code int, message string, data any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message, Data: data}}
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(rpcResponse{JSONRPC: "2.0", ID: json.RawMessage("null"), Error: &rpcError{Code: -32603, Message: "internal error"}})
	}
	return b
}

// Serve reads requests from r and writes responses to w until EOF or ctx is
// done. Both newline-delimited JSON and Content-Length framing are accepted;
// each response uses the framing of its request.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	writer := bufio.NewWriter(w)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		payload, framed, err := readMessage(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		resp := s.Handle(ctx, payload)
		if resp == nil {
			continue
		}
		if err := writeMessage(writer, resp, framed); err != nil {
			return fmt.Errorf("write message: %w", err)
		}
	}
}

func writeMessage(w *bufio.Writer, payload []byte, framed bool) error {
	if framed {
		if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
	} else {
		if _, err := w.Write(payload); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}

// readMessage returns the next message and whether it used Content-Length framing.
func readMessage(r *bufio.Reader) ([]byte, bool, error) {
	for {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return nil, false, err
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if err != nil {
				return nil, false, err
			}
			continue
		}
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			return []byte(trimmed), false, nil
		}

		length := -1
		header := trimmed
		for header != "" {
			if name, value, ok := strings.Cut(header, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
				n, perr := strconv.Atoi(strings.TrimSpace(value))
				if perr != nil {
					return nil, true, fmt.Errorf("invalid Content-Length: %w", perr)
				}
				length = n
			}
			next, rerr := r.ReadString('\n')
			if rerr != nil && next == "" {
				return nil, true, rerr
			}
			header = strings.TrimSpace(next)
		}
		if length <= 0 {
			return nil, true, errors.New("missing Content-Length")
		}
		if length > maxRequestBytes {
			return nil, true, fmt.Errorf("Content-Length %d exceeds %d bytes", length, maxRequestBytes)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, true, err
		}
		return payload, true, nil
	}
}
