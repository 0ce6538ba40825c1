package result

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fv(v float64) *float64 { return &v }

func TestMemoryStoreAppendAndLookup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, Record{ItemNo: 1, ItemName: "V1", Outcome: Pass, MeasuredValue: fv(5.01)}))
	require.NoError(t, s.Append(ctx, Record{ItemNo: 2, ItemName: "T1", Outcome: Fail, MeasuredText: "hello"}))

	byName, ok := s.GetByName("V1")
	require.True(t, ok)
	assert.Equal(t, Pass, byName.Outcome)

	byNo, ok := s.GetByOrdinal(2)
	require.True(t, ok)
	assert.Equal(t, "hello", byNo.MeasuredText)

	_, ok = s.GetByName("missing")
	assert.False(t, ok)

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].ItemNo)
	assert.Equal(t, 2, all[1].ItemNo)
}

func TestMemoryStoreRejectsDuplicateOrdinal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, Record{ItemNo: 1, ItemName: "A"}))
	assert.Error(t, s.Append(ctx, Record{ItemNo: 1, ItemName: "A2"}))
}

func TestRecordValueString(t *testing.T) {
	assert.Equal(t, "5.01", Record{MeasuredValue: fv(5.01)}.ValueString())
	assert.Equal(t, "hello", Record{MeasuredText: "hello"}.ValueString())
	assert.Equal(t, "", Record{}.ValueString())
	// Text wins when both are set.
	assert.Equal(t, "5.0V", Record{MeasuredValue: fv(5), MeasuredText: "5.0V", Timestamp: time.Now()}.ValueString())
}
