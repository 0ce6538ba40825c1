// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package driver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/webpdtool/webpdtool/internal/instrument"
	"github.com/webpdtool/webpdtool/internal/log"
)

// defaultCommandTimeout bounds command execution when the item declares
// no Timeout parameter.
const defaultCommandTimeout = 5000 * time.Millisecond

// commandParams is the normalised parameter set of the virtual command
// drivers. The resolver delivers keys in lower-underscore form.
type commandParams struct {
	Command           string
	Timeout           time.Duration
	ResponseLineCount int
	SettlingTime      time.Duration
}

func parseCommandParams(params map[string]any) (commandParams, error) {
	out := commandParams{Timeout: defaultCommandTimeout, ResponseLineCount: 1}

	cmd, _ := params["command"].(string)
	if cmd == "" {
		return out, fmt.Errorf("missing command")
	}
	out.Command = cmd

	if ms, ok := intParam(params, "timeout"); ok && ms > 0 {
		out.Timeout = time.Duration(ms) * time.Millisecond
	}
	if n, ok := intParam(params, "response_line_count"); ok && n > 0 {
		out.ResponseLineCount = n
	}
	if ms, ok := intParam(params, "settling_time"); ok && ms > 0 {
		out.SettlingTime = time.Duration(ms) * time.Millisecond
	}
	return out, nil
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Console runs shell commands as subprocesses. It uses a LOCAL connection:
// there is no physical session to manage.
type Console struct {
	cfg instrument.Config
}

// NewConsole is the driver factory for type "console".
func NewConsole(cfg instrument.Config) (instrument.Driver, error) {
	return &Console{cfg: cfg}, nil
}

func (d *Console) Initialize(context.Context) error { return nil }
func (d *Console) Reset(context.Context) error      { return nil }
func (d *Console) Close() error                     { return nil }

func (d *Console) ExecuteCommand(ctx context.Context, params map[string]any) (string, error) {
	p, err := parseCommandParams(params)
	if err != nil {
		return "", err
	}
	if err := settle(ctx, p.SettlingTime); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", p.Command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", &TimeoutError{After: p.Timeout}
	}
	if err != nil {
		return "", fmt.Errorf("command failed after %s: %w: %s",
			time.Since(start).Round(time.Millisecond), err, strings.TrimSpace(stderr.String()))
	}
	log.WithComponent("driver").Debug().
		Str("instrument", d.cfg.ID).
		Dur("elapsed", time.Since(start)).
		Msg("console command finished")
	return strings.TrimRight(stdout.String(), "\r\n"), nil
}

// ComPort performs a write-read exchange on a serial device node. The
// device is expected to be preconfigured (baud, framing) by the host; the
// driver only moves bytes. One reader goroutine owns the read side for the
// lifetime of the connection, so a response arriving after a timeout is
// drained by the next exchange instead of being lost.
type ComPort struct {
	cfg   instrument.Config
	port  *os.File
	lines chan string
}

// NewComPort is the driver factory for type "comport".
func NewComPort(cfg instrument.Config) (instrument.Driver, error) {
	return &ComPort{cfg: cfg}, nil
}

func (d *ComPort) Initialize(context.Context) error { return nil }
func (d *ComPort) Reset(context.Context) error      { return nil }

func (d *ComPort) Close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	d.lines = nil
	return err
}

func (d *ComPort) ExecuteCommand(ctx context.Context, params map[string]any) (string, error) {
	p, err := parseCommandParams(params)
	if err != nil {
		return "", err
	}
	device, _ := params["port"].(string)
	if device == "" {
		device = d.cfg.Connection.SerialPort
	}
	if device == "" {
		return "", fmt.Errorf("comport: no serial device configured")
	}
	if err := settle(ctx, p.SettlingTime); err != nil {
		return "", err
	}

	if d.port == nil {
		f, err := os.OpenFile(device, os.O_RDWR, 0)
		if err != nil {
			return "", fmt.Errorf("%w: open %s: %v", ErrConnectionFailed, device, err)
		}
		d.port = f
		d.lines = make(chan string, 64)
		go readLines(f, d.lines)
	}

	// Responses left over from a previous timed-out exchange must not be
	// read as the answer to this command.
	if err := drainStale(d.lines); err != nil {
		_ = d.Close()
		return "", err
	}

	if _, err := d.port.WriteString(p.Command + "\r\n"); err != nil {
		return "", fmt.Errorf("comport write: %w", err)
	}

	return collectLines(ctx, d.lines, p.ResponseLineCount, p.Timeout)
}

// TCPIP performs a send-recv exchange on a raw socket per command.
type TCPIP struct {
	cfg instrument.Config
}

// NewTCPIP is the driver factory for type "tcpip".
func NewTCPIP(cfg instrument.Config) (instrument.Driver, error) {
	return &TCPIP{cfg: cfg}, nil
}

func (d *TCPIP) Initialize(context.Context) error { return nil }
func (d *TCPIP) Reset(context.Context) error      { return nil }
func (d *TCPIP) Close() error                     { return nil }

func (d *TCPIP) ExecuteCommand(ctx context.Context, params map[string]any) (string, error) {
	p, err := parseCommandParams(params)
	if err != nil {
		return "", err
	}
	host, _ := params["host"].(string)
	if host == "" {
		host = d.cfg.Connection.Host
	}
	port, ok := intParam(params, "port")
	if !ok {
		port = d.cfg.Connection.Port
	}
	if host == "" || port == 0 {
		return "", fmt.Errorf("tcpip: no target host/port")
	}
	if err := settle(ctx, p.SettlingTime); err != nil {
		return "", err
	}

	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return "", fmt.Errorf("%w: dial %s:%d: %v", ErrConnectionFailed, host, port, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(p.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(p.Command + "\n")); err != nil {
		if isDeadline(err) {
			return "", &TimeoutError{After: p.Timeout}
		}
		return "", fmt.Errorf("tcpip write: %w", err)
	}

	reader := bufio.NewReader(conn)
	var lines []string
	for i := 0; i < p.ResponseLineCount; i++ {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if isDeadline(err) {
				return "", &TimeoutError{After: p.Timeout}
			}
			break
		}
	}
	return strings.Join(lines, "\n"), nil
}

// readLines pumps the port into the line channel until the port dies. The
// channel is closed on read error, which collectLines and drainStale report
// as a lost connection.
func readLines(f *os.File, lines chan<- string) {
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			lines <- strings.TrimRight(line, "\r\n")
		}
		if err != nil {
			close(lines)
			return
		}
	}
}

// drainStale discards buffered lines without blocking.
func drainStale(lines <-chan string) error {
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return fmt.Errorf("%w: serial port closed", ErrConnectionFailed)
			}
		default:
			return nil
		}
	}
}

// collectLines waits for up to n response lines, bounded by a supervising
// timeout (file handles have no portable read deadline). A closed channel
// ends the response early with whatever arrived.
func collectLines(ctx context.Context, lines <-chan string, n int, timeout time.Duration) (string, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	var out []string
	for len(out) < n {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
			return "", &TimeoutError{After: timeout}
		case line, ok := <-lines:
			if !ok {
				return strings.Join(out, "\n"), nil
			}
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}
