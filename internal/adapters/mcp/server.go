// Package mcpadapter exposes rule diagnostics over the Model Context
// Protocol so assistants can test rules and inspect documents.
package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docflow/internal/core/ports"
)

const serverName = "docflow"

type Services struct {
	Documents ports.DocumentService
	Rules     ports.RuleService
	Tenants   ports.TenantService
	Verifier  ports.WebhookVerifier
}

type Tools struct {
	svc    Services
	logger *slog.Logger
}

func NewTools(svc Services, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{svc: svc, logger: logger.With("component", "mcp")}
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(tools *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("dry_run_rules",
		mcp.WithDescription("Evaluate a tenant's classification rules against a hypothetical document without storing anything."),
		mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant that owns the rules")),
		mcp.WithString("file_name", mcp.Required(), mcp.Description("File name, including extension")),
		mcp.WithString("mime_type", mcp.Description("MIME type such as application/pdf")),
		mcp.WithNumber("size_bytes", mcp.Description("File size in bytes")),
		mcp.WithString("text", mcp.Description("Extracted text used by TextContent conditions")),
	), tools.DryRunRules)

	s.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Fetch a document with its status, tags and classification history."),
		mcp.WithString("tenant_id", mcp.Required()),
		mcp.WithString("document_id", mcp.Required()),
	), tools.GetDocument)

	s.AddTool(mcp.NewTool("tenant_usage",
		mcp.WithDescription("Report a tenant's quota and measured usage."),
		mcp.WithString("tenant_id", mcp.Required()),
	), tools.TenantUsage)

	s.AddTool(mcp.NewTool("verify_signature",
		mcp.WithDescription("Check an X-Webhook-Signature value against a payload and secret."),
		mcp.WithString("payload", mcp.Required(), mcp.Description("Raw request body")),
		mcp.WithString("signature", mcp.Required(), mcp.Description("Value of the X-Webhook-Signature header")),
		mcp.WithString("secret", mcp.Required(), mcp.Description("Signing secret")),
	), tools.VerifySignature)

	return s
}

func (t *Tools) DryRunRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := request.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fileName, err := request.RequireString("file_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results, err := t.svc.Rules.DryRun(ctx, tenantID, ports.DryRunInput{
		FileName:  fileName,
		MimeType:  request.GetString("mime_type", ""),
		SizeBytes: int64(request.GetFloat("size_bytes", 0)),
		Text:      request.GetString("text", ""),
	})
	if err != nil {
		return t.toolError("dry_run_rules", err), nil
	}
	return jsonResult(map[string]any{"results": results})
}

func (t *Tools) GetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := request.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	documentID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := t.svc.Documents.Get(ctx, tenantID, documentID)
	if err != nil {
		return t.toolError("get_document", err), nil
	}
	return jsonResult(doc.Snapshot())
}

func (t *Tools) TenantUsage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := request.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	usage, err := t.svc.Tenants.Usage(ctx, tenantID)
	if err != nil {
		return t.toolError("tenant_usage", err), nil
	}
	return jsonResult(usage)
}

func (t *Tools) VerifySignature(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := make([]string, 0, 3)
	for _, name := range []string{"payload", "signature", "secret"} {
		v, err := request.RequireString(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args = append(args, v)
	}
	return jsonResult(map[string]bool{"valid": t.svc.Verifier.VerifySignature(args[0], args[1], args[2])})
}

// toolError returns domain failures as tool results, not protocol errors.
func (t *Tools) toolError(tool string, err error) *mcp.CallToolResult {
	t.logger.Warn("mcp_tool_failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
