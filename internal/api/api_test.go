package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpdtool/webpdtool/internal/instrument"
	"github.com/webpdtool/webpdtool/internal/instrument/driver"
	"github.com/webpdtool/webpdtool/internal/instrument/pool"
	"github.com/webpdtool/webpdtool/internal/measure"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/result"
	"github.com/webpdtool/webpdtool/internal/session"
	"github.com/webpdtool/webpdtool/internal/session/lifecycle"
	"github.com/webpdtool/webpdtool/internal/session/store"
)

type testEnv struct {
	router  http.Handler
	manager *session.Manager
	plans   plan.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg, err := instrument.NewRegistry(nil, driver.Factories())
	require.NoError(t, err)
	p := pool.New(reg, time.Minute)
	t.Cleanup(p.Close)

	plans := plan.NewMemoryRepository()
	repo := store.NewMemoryStore()
	dispatcher := measure.NewDispatcher(p, t.TempDir())
	engine := session.NewEngine(dispatcher, repo, nil, false)
	manager := session.NewManager(plans, repo, engine)

	srv := NewServer(manager, dispatcher, plans)
	return &testEnv{router: srv.Router(), manager: manager, plans: plans}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func smokePlan() *plan.Plan {
	return &plan.Plan{
		Project: "widget", Station: "FT-01", Name: "smoke",
		Items: []plan.TestItem{
			{ItemNo: 1, ItemName: "Boot", TestType: "Dummy",
				Parameters: map[string]any{"Value": "OK"}, Enabled: true},
		},
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlanLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/plans/", smokePlan())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/plans/widget/FT-01/smoke", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got plan.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "smoke", got.Name)

	rec = env.do(t, http.MethodGet, "/api/plans/no/such/plan", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A plan that fails validation is rejected.
	bad := smokePlan()
	bad.Items = nil
	rec = env.do(t, http.MethodPut, "/api/plans/", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.plans.PutPlan(context.Background(), smokePlan()))

	rec := env.do(t, http.MethodPost, "/api/sessions/", map[string]string{
		"plan_ref": "widget/FT-01/smoke", "serial": "SN0001",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.ID)

	env.manager.Wait(sess.ID)

	rec = env.do(t, http.MethodGet, "/api/sessions/"+sess.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var final session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &final))
	assert.Equal(t, lifecycle.Completed, final.State)
	assert.Equal(t, result.Pass, final.Outcome)

	rec = env.do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []result.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, result.Pass, recs[0].Outcome)

	rec = env.do(t, http.MethodGet, "/api/sessions/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Events for a finished session end immediately.
	rec = env.do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: end")
}

func TestSessionErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sessions/", map[string]string{
		"plan_ref": "no/such/plan", "serial": "SN0001",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions/", map[string]string{"serial": "SN0001"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	disabled := smokePlan()
	disabled.Name = "dark"
	disabled.Items[0].Enabled = false
	require.NoError(t, env.plans.PutPlan(context.Background(), disabled))
	rec = env.do(t, http.MethodPost, "/api/sessions/", map[string]string{
		"plan_ref": disabled.Ref(), "serial": "SN0001",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sessions/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions/ghost/abort", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteMeasurementEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/measurements/execute", plan.TestItem{
		ItemNo: 1, ItemName: "Adhoc", TestType: "Dummy",
		Parameters: map[string]any{"Value": 42},
		ValueType:  plan.ValueInteger,
		LimitType:  plan.LimitEquality,
		EqLimit:    "42",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var r result.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, result.Pass, r.Outcome)

	rec = env.do(t, http.MethodPost, "/api/measurements/execute", plan.TestItem{
		ItemName: "NoType",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateParametersEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/measurements/validate", map[string]any{
		"test_type":   "PowerSet",
		"switch_mode": "MODEL2303",
		"parameters":  map[string]any{"Instrument": "psu_1", "SetVolt": 5.0},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var report measure.ValidationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.Valid)
	assert.Contains(t, report.Missing, "SetCurr")
	assert.Contains(t, report.Missing, "Channel")
}

func TestTemplateEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/measurements/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var templates map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &templates))
	assert.Contains(t, templates, "powerread")

	rec = env.do(t, http.MethodGet, "/api/measurements/validation-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var types map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &types))
	assert.Contains(t, types["limit_types"], "partial")
}
