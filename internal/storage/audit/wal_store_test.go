package audit

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"go.uber.org/zap"
)

func testRecord(id string, stage domain.AuditStage, success bool) domain.AuditRecord {
	return domain.AuditRecord{
		ID:        id,
		Timestamp: time.Date(2024, 3, 12, 15, 55, 0, 0, time.UTC),
		Kind:      "dip_buying",
		Symbols:   []string{"SGOV", "TQQQ"},
		Amount:    decimal.NewFromInt(25),
		Reason:    "initial entry: 1/40 split",
		Stage:     stage,
		Success:   success,
	}
}

func TestWALStore_RecordAndRead(t *testing.T) {
	dir := t.TempDir()
	store, err := NewWALStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Record(ctx, testRecord("a", domain.AuditStageProposed, true)))
	require.NoError(t, store.Record(ctx, testRecord("a", domain.AuditStageExecuted, false)))
	require.Error(t, store.Record(ctx, domain.AuditRecord{}), "id is required")

	records, err := store.RecordsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, domain.AuditStageProposed, records[0].Record.Stage)
	require.Equal(t, domain.AuditStageExecuted, records[1].Record.Stage)
	require.False(t, records[1].Record.Success)
	require.True(t, records[0].Record.Amount.Equal(decimal.NewFromInt(25)))
	require.Equal(t, []string{"SGOV", "TQQQ"}, records[0].Record.Symbols)

	later, err := store.RecordsAfter(records[0].Index)
	require.NoError(t, err)
	require.Len(t, later, 1)

	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, records[1].Index, reopened.CurrentIndex())
}

type failingSink struct {
	calls int
}

func (s *failingSink) Record(context.Context, domain.AuditRecord) error {
	s.calls++
	return errors.New("unavailable")
}

type countingSink struct {
	records []domain.AuditRecord
}

func (s *countingSink) Record(_ context.Context, rec domain.AuditRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func TestMulti_AttemptsEverySink(t *testing.T) {
	failing := &failingSink{}
	counting := &countingSink{}
	m := NewMulti(zap.NewNop(), failing, nil, counting, NewLogSink(zap.NewNop()))

	err := m.Record(context.Background(), testRecord("b", domain.AuditStageProposed, true))
	require.Error(t, err)
	require.Equal(t, 1, failing.calls)
	require.Len(t, counting.records, 1)

	require.NoError(t, NewMulti(nil, counting).Record(context.Background(), testRecord("c", domain.AuditStageExecuted, true)))
	require.Len(t, counting.records, 2)
}
