// Package mcpserver exposes the world as Model Context Protocol tools. Every
// tool call goes through the bridge, so tools never touch the engine
// concurrently with each other.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/orrery/internal/bridge"
)

// Name is the server name reported to MCP clients.
const Name = "orrery"

// MaxTicks bounds the count argument of the tick tool.
const MaxTicks = 10000

// Server holds the MCP server and the bridge client its tools call.
type Server struct {
	client *bridge.Client
	mcp    *server.MCPServer
}

// New registers the world tools.
func New(client *bridge.Client, version string) *Server {
	s := &Server{
		client: client,
		mcp:    server.NewMCPServer(Name, version, server.WithToolCapabilities(false), server.WithRecovery()),
	}

	s.mcp.AddTool(mcp.NewTool("read_entity",
		mcp.WithDescription("Read the JSON record of one body, e.g. sun/earth."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Logical entity path")),
	), s.readEntity)

	s.mcp.AddTool(mcp.NewTool("list_entities",
		mcp.WithDescription("List entity paths. With a path, list its immediate children only."),
		mcp.WithString("path", mcp.Description("Parent entity path")),
		mcp.WithString("order", mcp.Enum("tree", "sma"), mcp.Description("tree (default) or by semi-major axis")),
	), s.listEntities)

	s.mcp.AddTool(mcp.NewTool("tick",
		mcp.WithDescription("Advance the simulation by one or more ticks."),
		mcp.WithNumber("count", mcp.Description("Number of ticks (default 1)")),
	), s.tick)

	s.mcp.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Report simulated time, time warp, generation and run state."),
	), s.status)

	s.mcp.AddTool(mcp.NewTool("set_time_warp",
		mcp.WithDescription("Set the simulated seconds per wall-clock second."),
		mcp.WithNumber("warp", mcp.Required()),
	), s.setTimeWarp)

	s.mcp.AddTool(mcp.NewTool("export_world",
		mcp.WithDescription("Export the whole world as a world file."),
	), s.exportWorld)

	s.mcp.AddTool(mcp.NewTool("query",
		mcp.WithDescription("Evaluate a JSONPath selector against an entity record, e.g. $.orbit.ecc."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Logical entity path")),
		mcp.WithString("selector", mcp.Required(), mcp.Description("JSONPath selector")),
	), s.query)

	s.mcp.AddTool(mcp.NewTool("light_time",
		mcp.WithDescription("Light travel time between two entities, in seconds."),
		mcp.WithString("from", mcp.Required()),
		mcp.WithString("to", mcp.Required()),
	), s.lightTime)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) readEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.client.ReadEntity(ctx, strings.Trim(path, "/"))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("read_entity", err), nil
	}
	return jsonResult(rec)
}

func (s *Server) listEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := strings.Trim(req.GetString("path", ""), "/")
	order := req.GetString("order", "tree")

	var (
		paths []string
		err   error
	)
	switch {
	case path != "":
		paths, err = s.client.ListChildren(ctx, path)
	case order == "sma":
		paths, err = s.client.ListAll(ctx, true)
	case order == "tree":
		paths, err = s.client.ListAll(ctx, false)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown order %q", order)), nil
	}
	if err != nil {
		return mcp.NewToolResultErrorFromErr("list_entities", err), nil
	}
	if paths == nil {
		paths = []string{}
	}
	return jsonResult(paths)
}

func (s *Server) tick(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count := req.GetInt("count", 1)
	if count < 1 || count > MaxTicks {
		return mcp.NewToolResultError(fmt.Sprintf("count must be between 1 and %d", MaxTicks)), nil
	}
	var last bridge.TickResult
	for i := 0; i < count; i++ {
		res, err := s.client.Tick(ctx)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("tick", err), nil
		}
		last = res
	}
	return jsonResult(last)
}

func (s *Server) status(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.client.Status(ctx)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("status", err), nil
	}
	return jsonResult(st)
}

func (s *Server) setTimeWarp(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	warp, err := req.RequireFloat("warp")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.client.SetTimeWarp(ctx, warp); err != nil {
		return mcp.NewToolResultErrorFromErr("set_time_warp", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("time warp set to %g", warp)), nil
}

func (s *Server) exportWorld(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.client.Export(ctx)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("export_world", err), nil
	}
	return mcp.NewToolResultText(data), nil
}

func (s *Server) query(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	selector, err := req.RequireString("selector")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.client.Query(ctx, strings.Trim(path, "/"), selector)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("query", err), nil
	}
	if out == nil {
		out = []any{}
	}
	return jsonResult(out)
}

func (s *Server) lightTime(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.client.LightTime(ctx, strings.Trim(from, "/"), strings.Trim(to, "/"))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("light_time", err), nil
	}
	return jsonResult(bridge.LightTimeResult{Seconds: d.Seconds()})
}
