// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package report renders finished sessions as CSV files under the report
// base directory. Report writing is best-effort: a failed write never fails
// the session that produced it.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/webpdtool/webpdtool/internal/log"
	"github.com/webpdtool/webpdtool/internal/metrics"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/result"
)

// FallbackDirName is created under $HOME when the configured base directory
// is not writable.
const FallbackDirName = "webpdtool_reports"

var header = []string{
	"Item No", "Item Name", "Result", "Measured Value",
	"Min Limit", "Max Limit", "Error Message", "Execution Time (ms)", "Test Time",
}

// Meta identifies the session a report belongs to.
type Meta struct {
	Project string
	Station string
	Serial  string
	Start   time.Time
}

// Writer renders session reports below a base directory.
type Writer struct {
	baseDir string
}

// NewWriter returns a report writer rooted at baseDir.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// Write renders one report and returns the path it landed at. The file is
// written atomically; on a permission failure the writer retries once under
// $HOME/webpdtool_reports.
func (w *Writer) Write(meta Meta, items []plan.TestItem, records []result.Record) (string, error) {
	data, err := render(items, records)
	if err != nil {
		metrics.RecordReportWrite(false)
		return "", err
	}

	rel := relPath(meta)
	path := filepath.Join(w.baseDir, rel)
	if err := writeAtomic(path, data); err != nil {
		if os.IsPermission(err) {
			if home, herr := os.UserHomeDir(); herr == nil {
				fallback := filepath.Join(home, FallbackDirName, rel)
				log.WithComponent("report").Warn().
					Str("path", path).
					Str("fallback", fallback).
					Msg("report base not writable, using fallback")
				if ferr := writeAtomic(fallback, data); ferr == nil {
					metrics.RecordReportWrite(true)
					return fallback, nil
				}
			}
		}
		metrics.RecordReportWrite(false)
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	metrics.RecordReportWrite(true)
	return path, nil
}

// Cleanup deletes reports older than maxAgeDays and prunes directories left
// empty. A non-positive age disables cleanup.
func (w *Writer) Cleanup(maxAgeDays int) error {
	if maxAgeDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	var removed int
	err := filepath.Walk(w.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".csv") {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	pruneEmptyDirs(w.baseDir)
	if removed > 0 {
		log.WithComponent("report").Info().
			Int("removed", removed).
			Int("max_age_days", maxAgeDays).
			Msg("report retention cleanup")
	}
	return nil
}

// relPath builds {project}/{station}/{YYYYMMDD}/{serial}_{YYYYMMDD_HHMMSS}.csv
// with every operator-supplied segment sanitised.
func relPath(meta Meta) string {
	day := meta.Start.Format("20060102")
	stamp := meta.Start.Format("20060102_150405")
	name := fmt.Sprintf("%s_%s.csv", sanitizeSerial(meta.Serial), stamp)
	return filepath.Join(sanitizeSegment(meta.Project), sanitizeSegment(meta.Station), day, name)
}

// sanitizeSegment makes one path segment safe: separators and control
// characters become underscores, trailing whitespace and dots are trimmed.
func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(b.String(), " \t.")
	if out == "" {
		return "unknown"
	}
	return out
}

// sanitizeSerial additionally folds spaces, since the serial lands in a
// file name.
func sanitizeSerial(s string) string {
	return sanitizeSegment(strings.ReplaceAll(s, " ", "_"))
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return err
	}
	defer func() { _ = pendingFile.Cleanup() }()
	if _, err := pendingFile.Write(data); err != nil {
		return err
	}
	return pendingFile.CloseAtomicallyReplace()
}

func render(items []plan.TestItem, records []result.Record) ([]byte, error) {
	byNo := make(map[int]plan.TestItem, len(items))
	for _, it := range items {
		byNo[it.ItemNo] = it
	}

	var sb strings.Builder
	cw := csv.NewWriter(&sb)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	for _, rec := range records {
		minLimit, maxLimit := limitColumns(byNo[rec.ItemNo])
		row := []string{
			strconv.Itoa(rec.ItemNo),
			rec.ItemName,
			string(rec.Outcome),
			rec.ValueString(),
			minLimit,
			maxLimit,
			rec.ErrorMessage,
			strconv.FormatInt(rec.ExecutionMS, 10),
			rec.Timestamp.Format("2006-01-02 15:04:05"),
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// limitColumns renders the item's limit rule into the report's two limit
// columns. Equality-style limits occupy the min column.
func limitColumns(it plan.TestItem) (string, string) {
	switch it.LimitType {
	case plan.LimitLower:
		return formatLimit(it.LowerLimit), ""
	case plan.LimitUpper:
		return "", formatLimit(it.UpperLimit)
	case plan.LimitBoth:
		return formatLimit(it.LowerLimit), formatLimit(it.UpperLimit)
	case plan.LimitEquality, plan.LimitInequality, plan.LimitPartial:
		return it.EqLimit, ""
	default:
		return "", ""
	}
}

func formatLimit(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func pruneEmptyDirs(root string) {
	// Walk bottom-up by collecting directories first.
	var dirs []string
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i]) // fails for non-empty dirs, which is fine
	}
}
