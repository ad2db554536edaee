package health

import (
	"context"
	"net"
	"time"

	"github.com/cuemby/foreman/pkg/types"
)

// TCPChecker treats an accepted connection as healthy
type TCPChecker struct {
	Address string // host:port
	Timeout time.Duration
}

// NewTCPChecker creates a TCP checker for address
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: DefaultProbeTimeout}
}

// Check dials once and closes the connection straight away
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	var d net.Dialer
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return finish(start, false, "connection failed: %v", err)
	}
	_ = conn.Close()

	return finish(start, true, "accepting connections on %s", t.Address)
}

// Type returns the probe type
func (t *TCPChecker) Type() types.ProbeType {
	return types.ProbeTCP
}

// WithTimeout bounds a single dial
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
