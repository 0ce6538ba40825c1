package session_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/webpdtool/webpdtool/internal/instrument"
	"github.com/webpdtool/webpdtool/internal/instrument/driver"
	"github.com/webpdtool/webpdtool/internal/instrument/pool"
	"github.com/webpdtool/webpdtool/internal/measure"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/report"
	"github.com/webpdtool/webpdtool/internal/result"
	"github.com/webpdtool/webpdtool/internal/session"
	"github.com/webpdtool/webpdtool/internal/session/lifecycle"
	"github.com/webpdtool/webpdtool/internal/session/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testPlan(items ...plan.TestItem) *plan.Plan {
	return &plan.Plan{Project: "widget", Station: "FT-01", Name: "smoke", Items: items}
}

func dummyItem(no int, name string, params map[string]any) plan.TestItem {
	return plan.TestItem{
		ItemNo: no, ItemName: name, TestType: "Dummy",
		Parameters: params, Enabled: true,
	}
}

// newManager assembles a manager over dummy hardware. repo defaults to the
// in-memory store when nil.
func newManager(t *testing.T, pl *plan.Plan, repo session.Repository, autoSave bool) (*session.Manager, session.Repository) {
	t.Helper()
	reg, err := instrument.NewRegistry(nil, driver.Factories())
	require.NoError(t, err)
	p := pool.New(reg, time.Minute)
	t.Cleanup(p.Close)

	plans := plan.NewMemoryRepository()
	require.NoError(t, plans.PutPlan(context.Background(), pl))

	if repo == nil {
		repo = store.NewMemoryStore()
	}
	var reports *report.Writer
	if autoSave {
		reports = report.NewWriter(t.TempDir())
	}
	engine := session.NewEngine(measure.NewDispatcher(p, t.TempDir()), repo, reports, autoSave)
	return session.NewManager(plans, repo, engine), repo
}

func TestHappyPathSessionCompletes(t *testing.T) {
	pl := testPlan(
		dummyItem(1, "Boot", map[string]any{"Value": "OK"}),
		dummyItem(2, "ReadRail", map[string]any{"Value": 5.0}),
		plan.TestItem{ItemNo: 3, ItemName: "Disabled", TestType: "Dummy", Enabled: false},
	)
	pl.Items[1].ValueType = plan.ValueFloat
	pl.Items[1].LimitType = plan.LimitBoth
	lo, hi := 4.8, 5.2
	pl.Items[1].LowerLimit, pl.Items[1].UpperLimit = &lo, &hi

	m, repo := newManager(t, pl, nil, true)

	sess, err := m.StartSession(context.Background(), pl.Ref(), "SN0001")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Pending, sess.State)
	assert.Equal(t, 2, sess.TotalItems)

	m.Wait(sess.ID)

	final, err := m.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Completed, final.State)
	assert.Equal(t, result.Pass, final.Outcome)
	assert.Equal(t, 2, final.CompletedItems)
	assert.NotEmpty(t, final.ReportPath)

	recs, err := repo.ResultsFor(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2, "exactly one record per enabled item")
	assert.Equal(t, result.Pass, recs[0].Outcome)
	assert.Equal(t, result.Pass, recs[1].Outcome)
}

func TestFailedItemYieldsFailAggregate(t *testing.T) {
	pl := testPlan(
		dummyItem(1, "Boot", map[string]any{"Value": "OK"}),
		dummyItem(2, "Broken", map[string]any{"Fail": true}),
		dummyItem(3, "After", map[string]any{"Value": "OK"}),
	)
	m, repo := newManager(t, pl, nil, false)

	sess, err := m.StartSession(context.Background(), pl.Ref(), "SN0001")
	require.NoError(t, err)
	m.Wait(sess.ID)

	final, err := m.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Completed, final.State, "an item ERROR does not abort the session")
	assert.Equal(t, result.Fail, final.Outcome)

	recs, err := repo.ResultsFor(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, result.Error, recs[1].Outcome)
	assert.Equal(t, result.Pass, recs[2].Outcome, "items after a failure still run")
}

func TestAbortSkipsRemainingItems(t *testing.T) {
	pl := testPlan(
		dummyItem(1, "Boot", map[string]any{"Value": "OK"}),
		dummyItem(2, "Slow", map[string]any{"SleepMs": 5000}),
		dummyItem(3, "Never", map[string]any{"Value": "OK"}),
	)
	m, repo := newManager(t, pl, nil, true)

	sess, err := m.StartSession(context.Background(), pl.Ref(), "SN0001")
	require.NoError(t, err)

	events, cancel, err := m.SubscribeProgress(context.Background(), sess.ID)
	require.NoError(t, err)
	defer cancel()

	// Wait until the slow item is running, then abort.
	for ev := range events {
		if ev.Phase == session.PhaseItemStarted && ev.ItemNo == 2 {
			break
		}
	}
	start := time.Now()
	require.NoError(t, m.AbortSession(context.Background(), sess.ID))
	m.Wait(sess.ID)
	assert.Less(t, time.Since(start), 3*time.Second, "abort must not wait out the item")

	// The unreached item surfaces only as a SKIP progress event.
	var skipped []int
	for ev := range events {
		if ev.Phase == session.PhaseItemFinished && ev.Outcome == result.Skip {
			skipped = append(skipped, ev.ItemNo)
		}
	}
	assert.Equal(t, []int{3}, skipped)

	final, err := m.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Aborted, final.State)
	assert.Equal(t, result.Fail, final.Outcome)

	recs, err := repo.ResultsFor(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2, "no record for the unreached item")
	assert.Equal(t, result.Pass, recs[0].Outcome)
	assert.Equal(t, result.Error, recs[1].Outcome)
	assert.Equal(t, session.AbortedMessage, recs[1].ErrorMessage)

	data, err := os.ReadFile(final.ReportPath)
	require.NoError(t, err)
	rows := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, rows, 3, "header plus one row per executed item")
}

// sequencedRepo records the interleaving of result appends and is used to
// show that a record lands before the next item starts.
type sequencedRepo struct {
	session.Repository
	mu  sync.Mutex
	log []string
}

func (r *sequencedRepo) AppendResult(ctx context.Context, sessionID string, rec result.Record) error {
	r.mu.Lock()
	r.log = append(r.log, "append:"+rec.ItemName)
	r.mu.Unlock()
	return r.Repository.AppendResult(ctx, sessionID, rec)
}

func (r *sequencedRepo) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

func TestRecordDurableBeforeNextItem(t *testing.T) {
	pl := testPlan(
		dummyItem(1, "First", map[string]any{"Value": "OK"}),
		dummyItem(2, "Second", map[string]any{"Value": "OK"}),
	)
	seq := &sequencedRepo{Repository: store.NewMemoryStore()}
	m, _ := newManager(t, pl, seq, false)

	sess, err := m.StartSession(context.Background(), pl.Ref(), "SN0001")
	require.NoError(t, err)

	events, cancel, err := m.SubscribeProgress(context.Background(), sess.ID)
	require.NoError(t, err)
	defer cancel()

	var order []string
	for ev := range events {
		if ev.Phase == session.PhaseItemStarted {
			order = append(order, "start:"+ev.ItemName)
		}
	}
	m.Wait(sess.ID)

	require.Equal(t, []string{"append:First", "append:Second"}, seq.events())
	require.Equal(t, []string{"start:First", "start:Second"}, order)
}

// brokenRepo fails every result append.
type brokenRepo struct {
	session.Repository
}

func (r *brokenRepo) AppendResult(context.Context, string, result.Record) error {
	return errors.New("disk on fire")
}

func TestRepoFailureFailsSession(t *testing.T) {
	pl := testPlan(dummyItem(1, "Boot", map[string]any{"Value": "OK"}))
	broken := &brokenRepo{Repository: store.NewMemoryStore()}
	m, _ := newManager(t, pl, broken, false)

	sess, err := m.StartSession(context.Background(), pl.Ref(), "SN0001")
	require.NoError(t, err)
	m.Wait(sess.ID)

	final, err := m.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Failed, final.State)
	assert.Contains(t, final.Error, "disk on fire")
}

func TestStartSessionUnknownPlan(t *testing.T) {
	pl := testPlan(dummyItem(1, "Boot", nil))
	m, _ := newManager(t, pl, nil, false)
	_, err := m.StartSession(context.Background(), "no/such/plan", "SN0001")
	assert.ErrorIs(t, err, plan.ErrNotFound)

	_, err = m.StartSession(context.Background(), pl.Ref(), "")
	assert.ErrorContains(t, err, "serial")
}

func TestStartSessionNoEnabledItems(t *testing.T) {
	pl := testPlan(
		plan.TestItem{ItemNo: 1, ItemName: "Off", TestType: "Dummy", Enabled: false},
	)
	m, _ := newManager(t, pl, nil, false)
	_, err := m.StartSession(context.Background(), pl.Ref(), "SN0001")
	assert.ErrorIs(t, err, session.ErrNoEnabledItems)
}

func TestAbortFinishedSessionIsNoop(t *testing.T) {
	pl := testPlan(dummyItem(1, "Boot", map[string]any{"Value": "OK"}))
	m, _ := newManager(t, pl, nil, false)

	sess, err := m.StartSession(context.Background(), pl.Ref(), "SN0001")
	require.NoError(t, err)
	m.Wait(sess.ID)

	assert.NoError(t, m.AbortSession(context.Background(), sess.ID))
	assert.ErrorIs(t, m.AbortSession(context.Background(), "ghost"), session.ErrNotFound)
}

func TestSubscribeAfterFinishReturnsClosedChannel(t *testing.T) {
	pl := testPlan(dummyItem(1, "Boot", map[string]any{"Value": "OK"}))
	m, _ := newManager(t, pl, nil, false)

	sess, err := m.StartSession(context.Background(), pl.Ref(), "SN0001")
	require.NoError(t, err)
	m.Wait(sess.ID)

	ch, cancel, err := m.SubscribeProgress(context.Background(), sess.ID)
	require.NoError(t, err)
	defer cancel()
	_, open := <-ch
	assert.False(t, open)

	_, _, err = m.SubscribeProgress(context.Background(), "ghost")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestShutdownAbortsRunningSessions(t *testing.T) {
	pl := testPlan(dummyItem(1, "Slow", map[string]any{"SleepMs": 5000}))
	m, _ := newManager(t, pl, nil, false)

	sess, err := m.StartSession(context.Background(), pl.Ref(), "SN0001")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	final, err := m.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, final.State.Terminal())
}
