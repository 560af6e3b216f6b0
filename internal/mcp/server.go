package mcp

import (
	"context"
	"errors"
	"io"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/gocontext-vecstore/internal/vectorstore"
)

const (
	// ServerName is the MCP server name
	ServerName = "gocontext-vecstore"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp   *server.MCPServer
	store *vectorstore.Store
	log   zerolog.Logger
}

// NewServer creates a new MCP server instance serving store.
// The caller keeps ownership of store and closes it after Serve returns.
func NewServer(store *vectorstore.Store, version string, logger zerolog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if version == "" {
		version = ServerVersion
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:   mcpServer,
		store: store,
		log:   logger,
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until ctx is cancelled
// or stdin is closed
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen serves MCP over an arbitrary reader and writer pair
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	// zerolog.Logger is an io.Writer; protocol errors end up in the structured log
	stdio.SetErrorLogger(log.New(s.log, "", 0))

	s.log.Info().Str("server", ServerName).Msg("serving MCP on stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(createCollectionTool(), s.handleCreateCollection)
	s.mcp.AddTool(dropCollectionTool(), s.handleDropCollection)
	s.mcp.AddTool(listCollectionsTool(), s.handleListCollections)

	s.mcp.AddTool(upsertPointsTool(), s.handleUpsertPoints)
	s.mcp.AddTool(deletePointsTool(), s.handleDeletePoints)
	s.mcp.AddTool(getPointTool(), s.handleGetPoint)

	s.mcp.AddTool(beginIndexingTool(), s.handleBeginIndexing)
	s.mcp.AddTool(endIndexingTool(), s.handleEndIndexing)
	s.mcp.AddTool(rebuildIndexTool(), s.handleRebuildIndex)
	s.mcp.AddTool(indexStatusTool(), s.handleIndexStatus)

	s.mcp.AddTool(searchTool(), s.handleSearch)
}
