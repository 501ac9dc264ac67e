// Package mcp exposes the review pipeline as MCP tools so coding agents can
// request reviews of their own output.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/coderev/internal/models"
	"github.com/joescharf/coderev/internal/pipeline"
	"github.com/joescharf/coderev/internal/registry"
	"github.com/joescharf/coderev/internal/store"
)

// Server wraps the review pipeline and exposes it as MCP tools.
type Server struct {
	controller *pipeline.Controller
	registry   *registry.Registry
	store      store.Store
}

// NewServer creates the MCP server wrapper. The archive store may be nil.
func NewServer(ctrl *pipeline.Controller, reg *registry.Registry, st store.Store) *Server {
	return &Server{controller: ctrl, registry: reg, store: st}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("coderev", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.submitReviewTool())
	srv.AddTool(s.reviewStatusTool())
	srv.AddTool(s.reviewResultTool())
	srv.AddTool(s.reviewFileTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type fileInput struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

func parseFiles(raw string) ([]models.CodeUnit, error) {
	var files []fileInput
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return nil, fmt.Errorf("files must be a JSON array of {path, content}: %w", err)
	}
	units := make([]models.CodeUnit, 0, len(files))
	for _, f := range files {
		units = append(units, models.NewCodeUnit(f.Path, f.Content, f.Language))
	}
	return units, nil
}

func parseOptions(raw string) models.Options {
	if raw == "" {
		return models.DefaultOptions()
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return models.DefaultOptions()
	}
	return models.OptionsFromMap(m)
}

// coderev_submit_review
func (s *Server) submitReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("coderev_submit_review",
		mcp.WithDescription("Submit files for asynchronous code review. Returns a review_id to poll with coderev_review_status. files is a JSON array of {path, content}."),
		mcp.WithString("files", mcp.Required(), mcp.Description(`JSON array of files, e.g. [{"path":"app.py","content":"..."}]`)),
		mcp.WithString("options", mcp.Description(`JSON object of review options, e.g. {"enable_security":true,"confidence_threshold":0.7}`)),
	)
	return tool, s.handleSubmitReview
}

func (s *Server) handleSubmitReview(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawFiles, err := request.RequireString("files")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: files"), nil
	}
	units, err := parseFiles(rawFiles)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := s.controller.Submit(units, parseOptions(request.GetString("options", "")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("submit review: %v", err)), nil
	}

	data, _ := json.Marshal(map[string]string{
		"review_id": id,
		"status":    string(models.StagePending),
	})
	return mcp.NewToolResultText(string(data)), nil
}

// coderev_review_status
func (s *Server) reviewStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("coderev_review_status",
		mcp.WithDescription("Check the status of a review. Returns stage, progress percentage, and the result once complete."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review ID returned by coderev_submit_review")),
	)
	return tool, s.handleReviewStatus
}

func (s *Server) handleReviewStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}

	status, ok := s.registry.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("review not found: %s", id)), nil
	}

	data, err := json.Marshal(status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// coderev_review_result
func (s *Server) reviewResultTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("coderev_review_result",
		mcp.WithDescription("Fetch the full report of a completed review, from the live registry or the archive."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review ID")),
	)
	return tool, s.handleReviewResult
}

func (s *Server) handleReviewResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}

	if status, ok := s.registry.Get(id); ok {
		if status.Result == nil {
			return mcp.NewToolResultError(fmt.Sprintf("review %s is not complete: stage=%s", id, status.Stage)), nil
		}
		data, _ := json.Marshal(status.Result)
		return mcp.NewToolResultText(string(data)), nil
	}

	if s.store != nil {
		report, err := s.store.GetReport(ctx, id)
		if err == nil {
			data, _ := json.Marshal(report)
			return mcp.NewToolResultText(string(data)), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("load archived report: %v", err)), nil
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("review not found: %s", id)), nil
}

// coderev_review_file
func (s *Server) reviewFileTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("coderev_review_file",
		mcp.WithDescription("Review a single file synchronously and return the full report. Blocks until the review finishes."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path, used for language detection")),
		mcp.WithString("content", mcp.Required(), mcp.Description("File content")),
		mcp.WithString("options", mcp.Description("JSON object of review options")),
	)
	return tool, s.handleReviewFile
}

func (s *Server) handleReviewFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content"), nil
	}

	units := []models.CodeUnit{models.NewCodeUnit(path, content, "")}
	report, err := s.controller.Run(ctx, units, parseOptions(request.GetString("options", "")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	data, err := json.Marshal(report)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
