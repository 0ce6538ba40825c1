// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"time"

	"github.com/webpdtool/webpdtool/internal/log"
	"github.com/webpdtool/webpdtool/internal/measure"
	"github.com/webpdtool/webpdtool/internal/metrics"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/report"
	"github.com/webpdtool/webpdtool/internal/result"
	"github.com/webpdtool/webpdtool/internal/session/lifecycle"
)

// itemHardCeiling caps any single item regardless of its declared timeout.
const itemHardCeiling = 300 * time.Second

// abortGrace is how long an aborted measurement gets to unwind before the
// session stops waiting for it.
const abortGrace = 10 * time.Second

// AbortedMessage is recorded on the item that was running when the session
// was aborted.
const AbortedMessage = "aborted"

// GraceExceededMessage is recorded when an aborted measurement did not
// return within the grace period.
const GraceExceededMessage = "cancel grace exceeded"

// Engine executes one session at a time: the item loop, result recording,
// and finalization.
type Engine struct {
	dispatcher *measure.Dispatcher
	repo       Repository
	reports    *report.Writer
	autoSave   bool
}

// NewEngine wires the execution engine.
func NewEngine(dispatcher *measure.Dispatcher, repo Repository, reports *report.Writer, autoSave bool) *Engine {
	return &Engine{dispatcher: dispatcher, repo: repo, reports: reports, autoSave: autoSave}
}

// run drives one session to a terminal state. ctx cancellation means
// abort: the running item is cut short, the rest are skipped, and the
// session still finalizes.
func (e *Engine) run(ctx context.Context, sess Session, pl *plan.Plan, events *broadcaster) Session {
	logger := log.WithComponent("session").With().Str("session_id", sess.ID).Logger()

	transition := func(to lifecycle.State) {
		if !lifecycle.CanTransition(sess.State, to) {
			logger.Error().Str("from", string(sess.State)).Str("to", string(to)).Msg("illegal state transition")
			return
		}
		sess.State = to
		events.publish(ProgressEvent{SessionID: sess.ID, Phase: PhaseSession, State: to})
	}

	fail := func(err error) Session {
		sess.Error = err.Error()
		sess.State = lifecycle.Failed
		sess.FinishedAt = time.Now()
		events.publish(ProgressEvent{SessionID: sess.ID, Phase: PhaseSession, State: lifecycle.Failed, Message: sess.Error})
		if uerr := e.repo.UpdateSession(context.Background(), sess); uerr != nil {
			logger.Error().Err(uerr).Msg("failed to persist FAILED state")
		}
		metrics.RecordSessionFinished(string(lifecycle.Failed), string(sess.Outcome))
		logger.Error().Err(err).Msg("session failed")
		return sess
	}

	sess.StartedAt = time.Now()
	transition(lifecycle.Running)
	if err := e.repo.UpdateSession(context.Background(), sess); err != nil {
		return fail(err)
	}
	logger.Info().Str("plan", sess.PlanRef).Str("serial", sess.Serial).Int("items", sess.TotalItems).Msg("session started")

	results := result.NewMemoryStore()
	aborted := false

	for _, item := range pl.EnabledItems() {
		if ctx.Err() != nil {
			aborted = true
		}

		// Unreached items leave no record; they are only announced as
		// skipped on the progress stream.
		if aborted {
			events.publish(ProgressEvent{
				SessionID: sess.ID, Phase: PhaseItemFinished,
				ItemNo: item.ItemNo, ItemName: item.ItemName,
				Outcome: result.Skip,
			})
			continue
		}

		sess.CurrentItemNo = item.ItemNo
		events.publish(ProgressEvent{
			SessionID: sess.ID, Phase: PhaseItemStarted,
			ItemNo: item.ItemNo, ItemName: item.ItemName,
		})
		rec := e.executeWithGrace(ctx, item, results)
		if ctx.Err() != nil && rec.Outcome == result.Error {
			if rec.ErrorMessage != GraceExceededMessage {
				rec.ErrorMessage = AbortedMessage
			}
			aborted = true
		}

		// The record must be durable before the next item may start.
		if err := results.Append(context.Background(), rec); err != nil {
			return fail(err)
		}
		if err := e.repo.AppendResult(context.Background(), sess.ID, rec); err != nil {
			return fail(err)
		}
		sess.CompletedItems++
		if err := e.repo.UpdateSession(context.Background(), sess); err != nil {
			return fail(err)
		}
		events.publish(ProgressEvent{
			SessionID: sess.ID, Phase: PhaseItemFinished,
			ItemNo: item.ItemNo, ItemName: item.ItemName,
			Outcome: rec.Outcome, Message: rec.ErrorMessage,
		})
	}

	sess.CurrentItemNo = 0
	transition(lifecycle.Finalizing)
	if err := e.repo.UpdateSession(context.Background(), sess); err != nil {
		return fail(err)
	}

	sess.Outcome = aggregate(results.All())
	if e.autoSave && e.reports != nil {
		meta := report.Meta{Project: sess.Project, Station: sess.Station, Serial: sess.Serial, Start: sess.StartedAt}
		path, err := e.reports.Write(meta, pl.Items, results.All())
		if err != nil {
			// Best-effort: a failed report never fails the session.
			logger.Warn().Err(err).Msg("report write failed")
		} else {
			sess.ReportPath = path
		}
	}

	final := lifecycle.Completed
	if aborted {
		final = lifecycle.Aborted
	}
	sess.FinishedAt = time.Now()
	transition(final)
	if err := e.repo.UpdateSession(context.Background(), sess); err != nil {
		logger.Error().Err(err).Msg("failed to persist terminal state")
	}
	metrics.RecordSessionFinished(string(final), string(sess.Outcome))
	logger.Info().
		Str("state", string(final)).
		Str("outcome", string(sess.Outcome)).
		Dur("elapsed", sess.FinishedAt.Sub(sess.StartedAt)).
		Msg("session finished")
	return sess
}

// executeWithGrace runs one item under the hard ceiling. If the session is
// aborted mid-item the measurement gets abortGrace to unwind; a
// measurement that overstays is abandoned and reported as such.
func (e *Engine) executeWithGrace(ctx context.Context, item plan.TestItem, prior result.Store) result.Record {
	itemCtx, cancel := context.WithTimeout(ctx, itemHardCeiling)
	defer cancel()

	done := make(chan result.Record, 1)
	go func() {
		done <- e.dispatcher.Execute(itemCtx, item, prior)
	}()

	select {
	case rec := <-done:
		return rec
	case <-ctx.Done():
		select {
		case rec := <-done:
			return rec
		case <-time.After(abortGrace):
			return result.Record{
				ItemNo: item.ItemNo, ItemName: item.ItemName,
				Outcome: result.Error, ErrorMessage: GraceExceededMessage,
				Timestamp: time.Now(),
			}
		}
	}
}

// aggregate is PASS only when every executed (non-SKIP) item passed.
func aggregate(records []result.Record) result.Outcome {
	for _, rec := range records {
		if rec.Outcome == result.Skip {
			continue
		}
		if rec.Outcome != result.Pass {
			return result.Fail
		}
	}
	return result.Pass
}
