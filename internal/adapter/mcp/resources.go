package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const taskURIPrefix = "trackforge://tenants/"

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			taskURIPrefix+"{tenant_id}/tasks/{task_id}",
			"Task",
			mcplib.WithTemplateDescription("A task with its references resolved"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleTaskResource,
	)
}

// parseTaskURI splits trackforge://tenants/{tenant}/tasks/{task}.
func parseTaskURI(uri string) (tenantID, taskID string, err error) {
	rest, ok := strings.CutPrefix(uri, taskURIPrefix)
	if !ok {
		return "", "", fmt.Errorf("unsupported resource uri %q", uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "tasks" || parts[0] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("malformed task uri %q", uri)
	}
	return parts[0], parts[2], nil
}

func (s *Server) handleTaskResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"task reader not configured"}`,
			},
		}, nil
	}
	tenantID, taskID, err := parseTaskURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	d, err := s.deps.Tasks.Get(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
