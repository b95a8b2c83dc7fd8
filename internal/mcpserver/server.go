package mcpserver

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codegraph-rag/engine/internal/agents"
	"github.com/codegraph-rag/engine/internal/telemetry"
)

// Server adapts a Conductor onto the MCP tool-call surface. It holds no
// engine state of its own; every tool handler is a thin argument-parsing
// wrapper around one Conductor method.
type Server struct {
	conductor *agents.Conductor
	server    *mcp.Server
	log       *telemetry.Logger
}

// NewServer builds an MCP server named "codegraph-rag" and registers every
// engine operation as a tool bound to conductor.
func NewServer(conductor *agents.Conductor, log *telemetry.Logger) *Server {
	if log == nil {
		log = telemetry.Default()
	}
	s := &Server{
		conductor: conductor,
		log:       log,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "codegraph-rag",
			Version: "0.1.0",
		}, nil),
	}
	s.registerIndexTools()
	s.registerQueryTools()
	s.registerSemanticTools()
	s.registerMetricsTools()
	return s
}

// Start runs the server over stdio until ctx is cancelled. stdout carries
// only protocol frames; diagnostics go through s.log, which never writes to
// stdout.
func (s *Server) Start(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func stringSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func intSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc}
}

func boolSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: desc}
}

func numberSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Description: desc}
}

func stringArraySchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: stringSchema(""), Description: desc}
}

func objectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}
