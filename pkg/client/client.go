package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/foreman/pkg/control"
	"github.com/cuemby/foreman/pkg/events"
	"github.com/cuemby/foreman/pkg/types"
)

// DefaultTimeout bounds a single control call
const DefaultTimeout = 30 * time.Second

// Client wraps the Foreman control API for easy CLI usage
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the coordinator at addr. addr may be a
// bare host:port or a full http(s) URL.
func NewClient(addr string) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("coordinator address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid coordinator address: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{},
	}, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// call posts req to /v1/<op> and decodes the response into resp
func (c *Client) call(ctx context.Context, op string, req, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var body io.Reader = http.NoBody
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/"+op, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq, op, resp)
}

func (c *Client) get(ctx context.Context, path string, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, path, resp)
}

func (c *Client) do(req *http.Request, op string, resp any) error {
	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach coordinator: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return decodeError(httpResp, op)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// decodeError rebuilds the typed error carried by a failure payload
func decodeError(resp *http.Response, op string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var payload control.ErrorResponse
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error.Kind == "" {
		return types.NewError(types.KindInternal, op, "", "coordinator returned %s: %s",
			resp.Status, strings.TrimSpace(string(data)))
	}
	return &types.Error{Kind: payload.Error.Kind, Message: payload.Error.Message}
}

// ListServers lists workers
func (c *Client) ListServers(ctx context.Context, includeOffline bool) (*control.ListServersResponse, error) {
	var resp control.ListServersResponse
	err := c.call(ctx, control.OpListServers, control.ListServersRequest{IncludeOffline: includeOffline}, &resp)
	return &resp, err
}

// ServerStatus returns the full snapshot of one worker
func (c *Client) ServerStatus(ctx context.Context, name string) (*control.ServerStatusResponse, error) {
	var resp control.ServerStatusResponse
	err := c.call(ctx, control.OpServerStatus, control.ServerRequest{ServerName: name}, &resp)
	return &resp, err
}

// StartServer starts a worker
func (c *Client) StartServer(ctx context.Context, name string) (*control.ActionResponse, error) {
	var resp control.ActionResponse
	err := c.call(ctx, control.OpStartServer, control.ServerRequest{ServerName: name}, &resp)
	return &resp, err
}

// StopServer stops a worker
func (c *Client) StopServer(ctx context.Context, name string) (*control.ActionResponse, error) {
	var resp control.ActionResponse
	err := c.call(ctx, control.OpStopServer, control.ServerRequest{ServerName: name}, &resp)
	return &resp, err
}

// RestartServer restarts a worker
func (c *Client) RestartServer(ctx context.Context, name string) (*control.ActionResponse, error) {
	var resp control.ActionResponse
	err := c.call(ctx, control.OpRestartServer, control.ServerRequest{ServerName: name}, &resp)
	return &resp, err
}

// HealthCheck evaluates one worker, or all when name is empty
func (c *Client) HealthCheck(ctx context.Context, name string) (*control.HealthCheckResponse, error) {
	var resp control.HealthCheckResponse
	err := c.call(ctx, control.OpHealthCheck, control.HealthCheckRequest{ServerName: name}, &resp)
	return &resp, err
}

// RouteRequest asks which worker should serve a capability
func (c *Client) RouteRequest(ctx context.Context, req *control.RouteRequest) (*control.RouteResponse, error) {
	var resp control.RouteResponse
	err := c.call(ctx, control.OpRouteRequest, req, &resp)
	return &resp, err
}

// GetCapabilities lists advertised capabilities, optionally by category
func (c *Client) GetCapabilities(ctx context.Context, category string) (*control.CapabilitiesResponse, error) {
	var resp control.CapabilitiesResponse
	err := c.call(ctx, control.OpGetCapabilities, control.CapabilitiesRequest{Category: category}, &resp)
	return &resp, err
}

// SystemOverview returns the fleet-wide view
func (c *Client) SystemOverview(ctx context.Context) (*control.SystemOverviewResponse, error) {
	var resp control.SystemOverviewResponse
	err := c.call(ctx, control.OpSystemOverview, nil, &resp)
	return &resp, err
}

// ConfigureServer merges patch into a worker definition
func (c *Client) ConfigureServer(ctx context.Context, name string, patch *types.DefinitionPatch) (*control.ConfigureResponse, error) {
	var resp control.ConfigureResponse
	err := c.call(ctx, control.OpConfigureServer, control.ConfigureRequest{ServerName: name, Config: patch}, &resp)
	return &resp, err
}

// ResetServer drops configured changes and returns the registered definition
func (c *Client) ResetServer(ctx context.Context, name string) (*control.ConfigureResponse, error) {
	var resp control.ConfigureResponse
	err := c.call(ctx, control.OpResetServer, control.ServerRequest{ServerName: name}, &resp)
	return &resp, err
}

// ServerLogs returns the last lines of captured worker output
func (c *Client) ServerLogs(ctx context.Context, name string, lines int) (*control.LogsResponse, error) {
	var resp control.LogsResponse
	err := c.call(ctx, control.OpServerLogs, control.LogsRequest{ServerName: name, Lines: lines}, &resp)
	return &resp, err
}

// EventList is the persisted journal page
type EventList struct {
	Count  int             `json:"count"`
	Events []*events.Event `json:"events"`
}

// ListEvents returns up to limit journal entries, oldest first
func (c *Client) ListEvents(ctx context.Context, limit int) (*EventList, error) {
	var resp EventList
	err := c.get(ctx, "/v1/events?limit="+strconv.Itoa(limit), &resp)
	return &resp, err
}

// StreamEvents follows the live event stream until ctx is cancelled or the
// coordinator closes the stream. An empty worker follows every worker.
func (c *Client) StreamEvents(ctx context.Context, worker string, fn func(*events.Event)) error {
	path := "/v1/events/stream"
	if worker != "" {
		path += "?worker=" + url.QueryEscape(worker)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach coordinator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp, "streamEvents")
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev events.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		fn(&ev)
	}

	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}
