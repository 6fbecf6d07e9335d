// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the mapping review workflow for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stalvia/pricewatch/internal/mapping"
	"github.com/stalvia/pricewatch/internal/store"
	"github.com/stalvia/pricewatch/internal/taxonomy"
)

// Server wraps the MCP server with review tools.
type Server struct {
	mcp    *server.MCPServer
	mapper *mapping.Mapper
	tax    *taxonomy.Store
}

// New creates a new MCP server with all review tools registered.
func New(mapper *mapping.Mapper, tax *taxonomy.Store) *Server {
	s := &Server{mapper: mapper, tax: tax}

	s.mcp = server.NewMCPServer(
		"Pricewatch",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_pending_mappings",
		mcp.WithDescription("List category mappings of a source that still await review."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Retailer source name (e.g. dia, mercadona)")),
	), s.listPendingMappings)

	s.mcp.AddTool(mcp.NewTool("mapping_stats",
		mcp.WithDescription("Per-status mapping counts for a source."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Retailer source name")),
	), s.mappingStats)

	s.mcp.AddTool(mcp.NewTool("search_taxonomy",
		mcp.WithDescription("Search the internal taxonomy by name or keyword. "+
			"Use this to find the node id to confirm a mapping against. Read the "+
			"review contract first via the get_review_contract tool or the "+
			"pricewatch://review-workflow resource."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchTaxonomy)

	s.mcp.AddTool(mcp.NewTool("confirm_mapping",
		mcp.WithDescription("Confirm that an external category maps to the given taxonomy node. "+
			"A confirmed mapping is final and will not be touched by automatic matching."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Retailer source name")),
		mcp.WithString("external_id", mcp.Required(), mcp.Description("External category id as reported by the source")),
		mcp.WithString("taxonomy_node_id", mcp.Required(), mcp.Description("Id of the taxonomy node to map to")),
		mcp.WithString("notes", mcp.Description("Optional reviewer notes")),
	), s.confirmMapping)

	s.mcp.AddTool(mcp.NewTool("reject_mapping",
		mcp.WithDescription("Reject an external category: it has no counterpart in the taxonomy. "+
			"Products in a rejected category stay ingestable but carry no taxonomy node."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Retailer source name")),
		mcp.WithString("external_id", mcp.Required(), mcp.Description("External category id")),
		mcp.WithString("notes", mcp.Description("Optional reviewer notes")),
	), s.rejectMapping)

	s.mcp.AddTool(mcp.NewTool("apply_automatic_match",
		mcp.WithDescription("Record a machine-suggested match for a pending mapping. "+
			"Fails with a conflict if a human already confirmed or rejected the mapping."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Retailer source name")),
		mcp.WithString("external_id", mcp.Required(), mcp.Description("External category id")),
		mcp.WithString("taxonomy_node_id", mcp.Required(), mcp.Description("Suggested taxonomy node id")),
		mcp.WithNumber("confidence", mcp.Required(), mcp.Description("Match confidence, 0-100")),
	), s.applyAutomaticMatch)

	s.mcp.AddTool(mcp.NewTool("get_review_contract",
		mcp.WithDescription("Returns the mapping review workflow contract. "+
			"Call this before confirming or rejecting mappings."),
	), s.getReviewContract)

	// Resource: review workflow contract.
	s.mcp.AddResource(
		mcp.NewResource("pricewatch://review-workflow", "Review Workflow Contract",
			mcp.WithResourceDescription("Rules every mapping review must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readReviewContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listPendingMappings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.mapper.ListByStatus(source, store.StatusPending)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no pending mappings"), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) mappingStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stats, err := s.mapper.Stats(source)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(stats, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchTaxonomy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matches := s.tax.Search(query, 20)
	if len(matches) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	out, _ := json.MarshalIndent(matches, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) confirmMapping(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	externalID, err := req.RequireString("external_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nodeID, err := req.RequireString("taxonomy_node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes := req.GetString("notes", "")

	m, err := s.mapper.Confirm(source, externalID, nodeID, notes)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("confirmed: %s/%s -> %s", m.Source, m.ExternalID, m.TaxonomyNodeID)), nil
}

func (s *Server) rejectMapping(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	externalID, err := req.RequireString("external_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes := req.GetString("notes", "")

	m, err := s.mapper.Reject(source, externalID, notes)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("rejected: %s/%s", m.Source, m.ExternalID)), nil
}

func (s *Server) applyAutomaticMatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	externalID, err := req.RequireString("external_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nodeID, err := req.RequireString("taxonomy_node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	confidence, err := req.RequireFloat("confidence")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	m, err := s.mapper.ApplyAutomaticMatch(source, externalID, nodeID, int(confidence))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("matched: %s/%s -> %s (confidence %d)",
		m.Source, m.ExternalID, m.TaxonomyNodeID, int(confidence))), nil
}

func (s *Server) getReviewContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ReviewContract), nil
}

func (s *Server) readReviewContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "pricewatch://review-workflow",
			MIMEType: "text/markdown",
			Text:     ReviewContract,
		},
	}, nil
}
