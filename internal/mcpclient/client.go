package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const protocolVersion = "2024-11-05"

// ErrNotConnected is returned when a tool operation is attempted before
// Initialize has completed.
var ErrNotConnected = errors.New("mcp client not connected")

// Client talks to a remote MCP server over streamable HTTP. Auth headers are
// fixed at construction, so a Client is scoped to one authenticated request
// cycle and is cheap to create per call.
type Client struct {
	url        string
	headers    map[string]string
	tokenStore transport.TokenStore
	scopes     []string
	logger     *slog.Logger

	mu        sync.RWMutex
	client    *client.Client
	connected bool
}

// Option configures a Client.
type Option func(*Client)

// WithHeaders attaches static headers (typically Authorization) to every
// upstream request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithOAuth lets the transport drive token use and refresh itself through the
// given store instead of static headers.
func WithOAuth(store transport.TokenStore, scopes []string) Option {
	return func(c *Client) {
		c.tokenStore = store
		c.scopes = scopes
	}
}

// New creates a client for the MCP server at url. Initialize must be called
// before any tool operation.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize connects and performs the MCP protocol handshake.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	var opts []transport.StreamableHTTPCOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(c.headers))
	}
	if c.tokenStore != nil {
		opts = append(opts, transport.WithHTTPOAuth(transport.OAuthConfig{
			TokenStore: c.tokenStore,
			Scopes:     c.scopes,
		}))
	}

	mcpClient, err := client.NewStreamableHttpClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mcp client: %w", err)
	}

	initResult, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    "taskchat",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize mcp protocol: %w", err)
	}

	c.logger.Debug("mcp client initialized",
		"server", initResult.ServerInfo.Name, "version", initResult.ServerInfo.Version)

	c.client = mcpClient
	c.connected = true
	return nil
}

// ListTools returns the tools the upstream server exposes.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return nil, ErrNotConnected
	}

	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, nil
}

// CallTool executes a named tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return nil, ErrNotConnected
	}

	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %s: %w", name, err)
	}
	return result, nil
}

// Close shuts down the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	return c.client.Close()
}
