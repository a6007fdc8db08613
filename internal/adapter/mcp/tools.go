package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.getTaskTool(),
		s.getTaskTimelineTool(),
		s.listTaskAttachmentsTool(),
	)
}

func taskTool(name, description string) mcplib.Tool {
	return mcplib.NewTool(name,
		mcplib.WithDescription(description),
		mcplib.WithString("tenant_id",
			mcplib.Required(),
			mcplib.Description("The tenant owning the task"),
		),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("The task ID to look up"),
		),
	)
}

func (s *Server) getTaskTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool:    taskTool("get_task", "Get a task with its assignees, client, column and grouped attachments resolved"),
		Handler: s.handleGetTask,
	}
}

func (s *Server) getTaskTimelineTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool:    taskTool("get_task_timeline", "Get the comments and audit entries of a task in chronological order"),
		Handler: s.handleGetTaskTimeline,
	}
}

func (s *Server) listTaskAttachmentsTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool:    taskTool("list_task_attachments", "List the attachments of a task grouped by status"),
		Handler: s.handleListTaskAttachments,
	}
}

// taskArgs extracts the required tenant and task ids.
func taskArgs(req *mcplib.CallToolRequest) (tenantID, taskID string, res *mcplib.CallToolResult) {
	args := req.GetArguments()
	tenantID, _ = args["tenant_id"].(string)
	taskID, _ = args["task_id"].(string)
	switch {
	case tenantID == "":
		return "", "", mcplib.NewToolResultError("tenant_id is required")
	case taskID == "":
		return "", "", mcplib.NewToolResultError("task_id is required")
	}
	return tenantID, taskID, nil
}

func jsonResult(v any, what string) *mcplib.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal "+what, err)
	}
	return toolResultJSON(string(data))
}

func (s *Server) handleGetTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task reader not configured"), nil
	}
	tenantID, taskID, res := taskArgs(&req)
	if res != nil {
		return res, nil
	}
	d, err := s.deps.Tasks.Get(ctx, tenantID, taskID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get task %s", taskID), err), nil
	}
	return jsonResult(d, "task"), nil
}

func (s *Server) handleGetTaskTimeline(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task reader not configured"), nil
	}
	tenantID, taskID, res := taskArgs(&req)
	if res != nil {
		return res, nil
	}
	items, err := s.deps.Tasks.Timeline(ctx, tenantID, taskID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get timeline of task %s", taskID), err), nil
	}
	return jsonResult(items, "timeline"), nil
}

func (s *Server) handleListTaskAttachments(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Attachments == nil {
		return mcplib.NewToolResultError("attachment lister not configured"), nil
	}
	tenantID, taskID, res := taskArgs(&req)
	if res != nil {
		return res, nil
	}
	groups, err := s.deps.Attachments.List(ctx, tenantID, taskID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to list attachments of task %s", taskID), err), nil
	}
	return jsonResult(groups, "attachments"), nil
}
