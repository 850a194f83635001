package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/issues/internal/models"
	"github.com/joescharf/issues/internal/tracker"
)

// Server exposes the issue tracker as MCP tools.
type Server struct {
	issues  *tracker.Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *tracker.Service, version string) *Server {
	return &Server{issues: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("issues", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError turns validation failures into tool errors. Storage failures
// keep their generic message; the cause is already logged.
func toolError(op string, err error) *mcp.CallToolResult {
	if errors.Is(err, tracker.ErrStorage) {
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %s", op, tracker.ErrStorage))
	}
	return mcp.NewToolResultError(err.Error())
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

var filterFields = []string{
	models.FieldID,
	models.FieldIssueTitle,
	models.FieldIssueText,
	models.FieldCreatedBy,
	models.FieldAssignedTo,
	models.FieldStatusText,
	models.FieldOpen,
	models.FieldCreatedOn,
	models.FieldUpdatedOn,
}

// issues_list
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_list",
		mcp.WithDescription("List issues of a project. Every other argument is an exact-match filter; open accepts \"true\" or \"false\". Returns a JSON array."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString(models.FieldID, mcp.Description("Issue identifier")),
		mcp.WithString(models.FieldIssueTitle, mcp.Description("Exact title")),
		mcp.WithString(models.FieldCreatedBy, mcp.Description("Creator")),
		mcp.WithString(models.FieldAssignedTo, mcp.Description("Assignee")),
		mcp.WithString(models.FieldStatusText, mcp.Description("Status text")),
		mcp.WithString(models.FieldOpen, mcp.Description("\"true\" for open issues, anything else for closed")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	args := tracker.Body(request.GetArguments())
	params := url.Values{}
	for _, key := range filterFields {
		if _, ok := args[key]; !ok {
			continue
		}
		params.Set(key, request.GetString(key, ""))
	}
	// Boolean arguments arrive as JSON booleans rather than strings.
	if open, ok := args[models.FieldOpen].(bool); ok {
		params.Set(models.FieldOpen, fmt.Sprint(open))
	}

	issues, err := s.issues.List(ctx, project, params)
	if err != nil {
		return toolError("list issues", err), nil
	}
	return jsonResult(issues)
}

// issues_create
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_create",
		mcp.WithDescription("Create an open issue in a project. Returns the created issue as JSON."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString(models.FieldIssueTitle, mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString(models.FieldIssueText, mcp.Required(), mcp.Description("Issue text")),
		mcp.WithString(models.FieldCreatedBy, mcp.Required(), mcp.Description("Creator")),
		mcp.WithString(models.FieldAssignedTo, mcp.Description("Assignee")),
		mcp.WithString(models.FieldStatusText, mcp.Description("Status text")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	req := tracker.CreateRequestFromBody(tracker.Body(request.GetArguments()))
	issue, err := s.issues.Create(ctx, project, req)
	if err != nil {
		return toolError("create issue", err), nil
	}
	return jsonResult(issue)
}

// issues_update
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_update",
		mcp.WithDescription("Update fields of an issue. Omitted fields are left unchanged; the issue is reopened unless open is given. Returns {result,_id} or {error,_id}."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString(models.FieldID, mcp.Required(), mcp.Description("Issue identifier")),
		mcp.WithString(models.FieldIssueTitle, mcp.Description("New title")),
		mcp.WithString(models.FieldIssueText, mcp.Description("New text")),
		mcp.WithString(models.FieldCreatedBy, mcp.Description("New creator")),
		mcp.WithString(models.FieldAssignedTo, mcp.Description("New assignee")),
		mcp.WithString(models.FieldStatusText, mcp.Description("New status text")),
		mcp.WithBoolean(models.FieldOpen, mcp.Description("Set to false to close the issue")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	req := tracker.UpdateRequestFromBody(tracker.Body(request.GetArguments()))
	res, err := s.issues.Update(ctx, project, req)
	if err != nil {
		return toolError("update issue", err), nil
	}
	return jsonResult(res)
}

// issues_delete
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_delete",
		mcp.WithDescription("Permanently delete an issue. Returns {result,_id} or {error,_id}."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString(models.FieldID, mcp.Required(), mcp.Description("Issue identifier")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	req := tracker.DeleteRequestFromBody(tracker.Body(request.GetArguments()))
	res, err := s.issues.Delete(ctx, project, req)
	if err != nil {
		return toolError("delete issue", err), nil
	}
	return jsonResult(res)
}
