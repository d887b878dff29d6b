package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/robfig/cron/v3"

	"github.com/sharoncxu/weather-agent/models"
)

const (
	defaultInvokeTimeout = 30 * time.Second
	defaultPingSchedule  = "@every 1m"
)

// Config holds connection settings for a tool server. Either Command (stdio
// transport) or SSEURL must be set.
type Config struct {
	Command string
	Args    []string
	Env     []string

	SSEURL string

	InvokeTimeout time.Duration
	PingSchedule  string
}

// NewStdioConfig configures a tool server launched as a subprocess.
func NewStdioConfig(command string, args ...string) *Config {
	return &Config{
		Command:       command,
		Args:          args,
		InvokeTimeout: defaultInvokeTimeout,
		PingSchedule:  defaultPingSchedule,
	}
}

// NewSSEConfig configures a remote tool server reached over SSE.
func NewSSEConfig(url string) *Config {
	return &Config{
		SSEURL:        url,
		InvokeTimeout: defaultInvokeTimeout,
		PingSchedule:  defaultPingSchedule,
	}
}

// WithEnv sets extra environment variables for a stdio subprocess
func (c *Config) WithEnv(env ...string) *Config {
	c.Env = append(c.Env, env...)
	return c
}

// WithInvokeTimeout caps the duration of a single tool call
func (c *Config) WithInvokeTimeout(d time.Duration) *Config {
	c.InvokeTimeout = d
	return c
}

// WithPingSchedule sets the health check cadence (cron spec)
func (c *Config) WithPingSchedule(schedule string) *Config {
	c.PingSchedule = schedule
	return c
}

// Client wraps a connected tool server. The tool catalog is fetched once at
// connect time and stays fixed; a background health check tracks whether the
// server is still answering.
type Client struct {
	mcp     *client.Client
	catalog []models.FunctionDeclaration
	timeout time.Duration
	logger  *log.Logger
	cron    *cron.Cron

	mu        sync.Mutex
	closed    bool
	available bool
}

// Connect launches or dials the tool server, performs the protocol
// handshake, and loads the tool catalog.
func Connect(ctx context.Context, config *Config) (*Client, error) {
	logger := log.New(os.Stdout, "[MCP] ", log.LstdFlags)

	var (
		mcpClient *client.Client
		err       error
	)
	switch {
	case config.Command != "":
		mcpClient, err = client.NewStdioMCPClient(config.Command, config.Env, config.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to start tool server %q: %w", config.Command, err)
		}
	case config.SSEURL != "":
		mcpClient, err = client.NewSSEMCPClient(config.SSEURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSE client for %q: %w", config.SSEURL, err)
		}
		if err := mcpClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to tool server %q: %w", config.SSEURL, err)
		}
	default:
		return nil, fmt.Errorf("tool server config needs a command or an SSE URL")
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "weather-agent",
		Version: "1.0.0",
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("tool server handshake failed: %w", err)
	}

	toolsResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	c := &Client{
		mcp:       mcpClient,
		catalog:   CatalogFromTools(toolsResp.Tools),
		timeout:   config.InvokeTimeout,
		logger:    logger,
		available: true,
	}
	if c.timeout <= 0 {
		c.timeout = defaultInvokeTimeout
	}

	logger.Printf("Connected to tool server, %d tool(s) available", len(c.catalog))

	if config.PingSchedule != "" {
		c.cron = cron.New()
		if _, err := c.cron.AddFunc(config.PingSchedule, c.healthCheck); err != nil {
			logger.Printf("Invalid ping schedule %q, health checks disabled: %v", config.PingSchedule, err)
			c.cron = nil
		} else {
			c.cron.Start()
		}
	}

	return c, nil
}

// Catalog returns the tool declarations fetched at connect time.
func (c *Client) Catalog() []models.FunctionDeclaration {
	return c.catalog
}

// Available reports whether the last health check reached the server.
func (c *Client) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available && !c.closed
}

// Invoke executes one tool call. It never returns an error: transport
// failures, timeouts, and server-side tool errors all come back as an
// unsuccessful Tool_Result so the turn can continue.
func (c *Client) Invoke(ctx context.Context, call models.Tool_Call) models.Tool_Result {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return models.Tool_Result{
			Tool_ID:   call.Tool_ID,
			Tool_Name: call.Tool_Name,
			Success:   false,
			Error:     "tool server unavailable: connection closed",
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = call.Tool_Name
	callReq.Params.Arguments = call.Args

	res, err := c.mcp.CallTool(callCtx, callReq)
	if err != nil {
		result, unhealthy := resultFromCallError(call, err, c.timeout)
		c.logger.Printf("Tool %q call failed: %s", call.Tool_Name, result.Error)
		if unhealthy {
			c.setAvailable(false)
		}
		return result
	}

	c.setAvailable(true)
	return resultFromCallTool(call, res)
}

// resultFromCallError classifies a transport-level call failure. The second
// return says whether the failure reflects on the server's health: a
// caller's cancellation and a per-call timeout do not.
func resultFromCallError(call models.Tool_Call, err error, timeout time.Duration) (models.Tool_Result, bool) {
	result := models.Tool_Result{
		Tool_ID:   call.Tool_ID,
		Tool_Name: call.Tool_Name,
		Success:   false,
	}

	switch {
	case errors.Is(err, context.Canceled):
		result.Error = fmt.Sprintf("tool %q call canceled", call.Tool_Name)
		return result, false
	case errors.Is(err, context.DeadlineExceeded):
		result.Error = fmt.Sprintf("tool %q timed out after %v", call.Tool_Name, timeout)
		return result, false
	default:
		result.Error = fmt.Sprintf("tool server unavailable: %v", err)
		return result, true
	}
}

// Ping checks the server directly, outside the cron schedule.
func (c *Client) Ping(ctx context.Context) error {
	return c.mcp.Ping(ctx)
}

func (c *Client) healthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.mcp.Ping(ctx)
	if err != nil {
		c.logger.Printf("Tool server health check failed: %v", err)
	}
	c.setAvailable(err == nil)
}

func (c *Client) setAvailable(available bool) {
	c.mu.Lock()
	c.available = available
	c.mu.Unlock()
}

// Close stops the health checks and shuts down the connection. A closed
// client answers every Invoke with an unavailable result.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.cron != nil {
		c.cron.Stop()
	}
	return c.mcp.Close()
}
