package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPlan() *Plan {
	return &Plan{
		Project: "proj",
		Station: "st1",
		Name:    "smoke",
		Items: []TestItem{
			{ItemNo: 1, ItemName: "A", TestType: "Other", SwitchMode: "test123", Enabled: true},
			{ItemNo: 2, ItemName: "B", TestType: "Other", SwitchMode: "test123", UseResult: "A", Enabled: true},
			{ItemNo: 5, ItemName: "C", TestType: "Wait", WaitMSec: 100, Enabled: false},
		},
	}
}

func TestPlanValidate(t *testing.T) {
	require.NoError(t, validPlan().Validate())
}

func TestPlanValidateRejectsDuplicateNames(t *testing.T) {
	p := validPlan()
	p.Items[1].ItemName = "A"
	assert.ErrorContains(t, p.Validate(), "duplicate item name")
}

func TestPlanValidateRejectsNonIncreasingOrdinals(t *testing.T) {
	p := validPlan()
	p.Items[1].ItemNo = 1
	assert.ErrorContains(t, p.Validate(), "strictly increase")
}

func TestPlanValidateRejectsForwardUseResult(t *testing.T) {
	p := validPlan()
	p.Items[0].UseResult = "C" // forward reference
	assert.ErrorContains(t, p.Validate(), "earlier item")
}

func TestPlanValidateRejectsSelfUseResult(t *testing.T) {
	p := validPlan()
	p.Items[0].UseResult = "A"
	assert.Error(t, p.Validate())
}

func TestPlanValidateAcceptsOrdinalUseResult(t *testing.T) {
	p := validPlan()
	p.Items[1].UseResult = "1"
	require.NoError(t, p.Validate())
}

func TestEnabledItems(t *testing.T) {
	p := validPlan()
	items := p.EnabledItems()
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].ItemName)
	assert.Equal(t, "B", items[1].ItemName)
}

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	p := validPlan()
	require.NoError(t, repo.PutPlan(ctx, p))

	got, err := repo.GetPlan(ctx, p.Ref())
	require.NoError(t, err)
	assert.Equal(t, p.Items, got.Items)

	// Stored copy is isolated from caller mutation.
	got.Items[0].ItemName = "mutated"
	again, err := repo.GetPlan(ctx, p.Ref())
	require.NoError(t, err)
	assert.Equal(t, "A", again.Items[0].ItemName)

	_, err = repo.GetPlan(ctx, "missing/ref/x")
	assert.ErrorIs(t, err, ErrNotFound)
}
