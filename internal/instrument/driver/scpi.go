// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/webpdtool/webpdtool/internal/instrument"
	"github.com/webpdtool/webpdtool/internal/log"
)

const defaultSCPIPort = 5025

// scpiConn is a line-oriented SCPI transport over a raw socket. VISA
// addresses of the form TCPIP0::host::port::SOCKET are dialled directly;
// other VISA resource classes require a gateway and are rejected at
// Initialize.
type scpiConn struct {
	cfg       instrument.Config
	ioTimeout time.Duration

	conn   net.Conn
	reader *bufio.Reader
}

func newSCPIConn(cfg instrument.Config) *scpiConn {
	timeout := 5 * time.Second
	if v, ok := cfg.Settings["io_timeout_ms"]; ok {
		switch t := v.(type) {
		case float64:
			timeout = time.Duration(t) * time.Millisecond
		case int:
			timeout = time.Duration(t) * time.Millisecond
		case string:
			if n, err := strconv.Atoi(t); err == nil {
				timeout = time.Duration(n) * time.Millisecond
			}
		}
	}
	return &scpiConn{cfg: cfg, ioTimeout: timeout}
}

func (c *scpiConn) endpoint() (string, error) {
	conn := c.cfg.Connection
	switch conn.Type {
	case instrument.ConnTCPIP:
		return net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port)), nil
	case instrument.ConnVISA:
		host, port, err := parseVISASocket(conn.Address)
		if err != nil {
			return "", err
		}
		return net.JoinHostPort(host, strconv.Itoa(port)), nil
	default:
		return "", fmt.Errorf("%w: SCPI transport does not support %s connections", ErrConnectionFailed, conn.Type)
	}
}

// parseVISASocket extracts host and port from a TCPIP VISA resource,
// e.g. "TCPIP0::10.0.0.5::5025::SOCKET" or "TCPIP::daq973a.local::INSTR".
func parseVISASocket(address string) (string, int, error) {
	parts := strings.Split(address, "::")
	if len(parts) < 2 || !strings.HasPrefix(strings.ToUpper(parts[0]), "TCPIP") {
		return "", 0, fmt.Errorf("%w: unsupported VISA resource %q", ErrConnectionFailed, address)
	}
	host := parts[1]
	port := defaultSCPIPort
	if len(parts) >= 3 {
		if n, err := strconv.Atoi(parts[2]); err == nil {
			port = n
		}
	}
	return host, port, nil
}

func (c *scpiConn) Initialize(ctx context.Context) error {
	addr, err := c.endpoint()
	if err != nil {
		return err
	}
	d := net.Dialer{Timeout: c.ioTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	log.WithComponent("driver").Debug().
		Str("instrument", c.cfg.ID).
		Str("addr", addr).
		Msg("scpi transport connected")
	return nil
}

func (c *scpiConn) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Send writes one command without waiting for a response.
func (c *scpiConn) Send(ctx context.Context, cmd string) error {
	if c.conn == nil {
		return fmt.Errorf("%w: not connected", ErrConnectionFailed)
	}
	deadline := time.Now().Add(c.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		if isDeadline(err) {
			return &TimeoutError{After: c.ioTimeout}
		}
		return err
	}
	return nil
}

// Query writes one command and reads one response line. Empty responses
// are returned as-is; the measurement layer turns them into the
// "No instrument found" sentinel.
func (c *scpiConn) Query(ctx context.Context, cmd string) (string, error) {
	if err := c.Send(ctx, cmd); err != nil {
		return "", err
	}
	deadline := time.Now().Add(c.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if isDeadline(err) {
			return "", &TimeoutError{After: c.ioTimeout}
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func isDeadline(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
