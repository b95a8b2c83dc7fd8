package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerMetricsTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "get_metrics",
		Description: "Summarize graph stats and the parser's CST cache occupancy.",
		InputSchema: objectSchema(nil),
	}, s.handleGetMetrics)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_agent_metrics",
		Description: "Report every registered agent's Scheduler lane occupancy.",
		InputSchema: objectSchema(nil),
	}, s.handleGetAgentMetrics)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_bus_stats",
		Description: "Report Knowledge Bus subscriber counts per topic.",
		InputSchema: objectSchema(nil),
	}, s.handleGetBusStats)

	s.server.AddTool(&mcp.Tool{
		Name:        "clear_bus_topic",
		Description: "Drop every current subscriber registered on topic.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"topic": stringSchema("Knowledge Bus topic to clear"),
		}, "topic"),
	}, s.handleClearBusTopic)
}

func (s *Server) handleGetMetrics(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.conductor.GetMetrics(ctx)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

func (s *Server) handleGetAgentMetrics(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return ok(s.conductor.AgentMetrics())
}

func (s *Server) handleGetBusStats(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return ok(s.conductor.BusStats())
}

type clearBusTopicParams struct {
	Topic string `json:"topic"`
}

func (s *Server) handleClearBusTopic(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p clearBusTopicParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	s.conductor.ClearBusTopic(p.Topic)
	return ok(map[string]bool{"cleared": true})
}
