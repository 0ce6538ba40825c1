// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/webpdtool/webpdtool/internal/measure/resolve"
	"github.com/webpdtool/webpdtool/internal/plan"
)

// measureScript runs a python script from the scripts directory. The
// switch_mode names the script; a "script" parameter overrides it and
// "<item_name>.py" is the fallback when both are empty. A substituted
// use_result value is passed as the single argument. The last non-empty
// stdout line is the measured value, parsed as integer, then float, then
// kept as text.
func (d *Dispatcher) measureScript(ctx context.Context, item plan.TestItem, params resolve.Params) (any, error) {
	name, _ := params.String("script")
	if name == "" {
		name = strings.TrimSpace(item.SwitchMode)
	}
	if name == "" {
		name = item.ItemName + ".py"
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.scriptsDir, name)
	}
	if _, err := os.Stat(path); err != nil {
		// Modes usually name the script without its extension.
		if filepath.Ext(path) != "" {
			return nil, fmt.Errorf("SCRIPT_NOT_FOUND: %s", path)
		}
		path += ".py"
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("SCRIPT_NOT_FOUND: %s", path)
		}
	}

	args := []string{path}
	if arg, ok := params.String("use_result"); ok && arg != "" {
		args = append(args, arg)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "python3", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("script %s timed out", name)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("script %s failed: %s", name, msg)
	}

	return parseScriptOutput(stdout.String()), nil
}

// parseScriptOutput interprets the last non-empty line of script output.
func parseScriptOutput(out string) any {
	lines := strings.Split(strings.TrimRight(out, "\r\n"), "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			last = s
			break
		}
	}
	if last == "" {
		return ""
	}
	if n, err := strconv.ParseInt(last, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(last, 64); err == nil {
		return f
	}
	return last
}
