package admin

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client round-trips commands against a running instance's admin socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a Client for the given socket path. A zero timeout
// falls back to the server-side exchange bound.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = connTimeout
	}
	return &Client{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Do sends one command and returns the response envelope. A status "error"
// response is returned as-is, not as a Go error: the caller decides how to
// present command failures. A Go error means the exchange itself failed,
// which usually means no instance is running.
func (c *Client) Do(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("admin: dial %s (is the daemon running?): %w", c.socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("admin: send command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("admin: read response: %w", err)
	}

	return &resp, nil
}
