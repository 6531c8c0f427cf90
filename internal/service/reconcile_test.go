package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ritualog/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileKeepsNewestAndIsIdempotent(t *testing.T) {
	gdb := setupServiceTestDB(t)
	store := NewGormCompletionStore(gdb).WithBatchSize(2)
	reconciler := NewReconciler(store, nil, nil)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	legacy := func(userID, trackableID string, day time.Time, createdAt time.Time) db.CompletionRecord {
		return insertRecord(t, gdb, db.CompletionRecord{
			UserID:      userID,
			Kind:        string(KindPrayer),
			TrackableID: trackableID,
			Day:         day,
			State:       true,
			CreatedAt:   createdAt,
		})
	}

	old := legacy("u1", "fajr", utcDay(2024, time.May, 1), created)
	newest := legacy("u1", "fajr", time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC), created.Add(time.Hour))
	older := legacy("u1", "fajr", time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC), created.Add(-time.Hour))
	// 同一创建时间按主键降序决胜
	tieA := legacy("u1", "asr", utcDay(2024, time.May, 2), created)
	tieB := legacy("u1", "asr", time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC), created)
	single := legacy("u2", "fajr", utcDay(2024, time.May, 1), created)
	insertRecord(t, gdb, db.CompletionRecord{UserID: "u1", Kind: string(KindHabit), TrackableID: "1", Day: time.Date(2024, 5, 1, 5, 0, 0, 0, time.UTC), State: true})
	insertRecord(t, gdb, db.CompletionRecord{UserID: "u1", Kind: string(KindHabit), TrackableID: "1", Day: utcDay(2024, time.May, 1), State: true})

	report, err := reconciler.Reconcile(ctx, KindPrayer)
	require.NoError(t, err)
	assert.Equal(t, KindPrayer, report.Kind)
	assert.Equal(t, 6, report.RecordsScanned)
	assert.Equal(t, 2, report.GroupsFound)
	assert.Equal(t, 3, report.RecordsDeleted)
	assert.Empty(t, report.Failures)

	var remaining []db.CompletionRecord
	require.NoError(t, gdb.Where("kind = ?", string(KindPrayer)).Order("id ASC").Find(&remaining).Error)
	ids := make([]uint, 0, len(remaining))
	for _, r := range remaining {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []uint{newest.ID, tieB.ID, single.ID}, ids)
	assert.NotContains(t, ids, old.ID)
	assert.NotContains(t, ids, older.ID)
	assert.NotContains(t, ids, tieA.ID)

	again, err := reconciler.Reconcile(ctx, KindPrayer)
	require.NoError(t, err)
	assert.Zero(t, again.GroupsFound)
	assert.Zero(t, again.RecordsDeleted)

	// 习惯记录不受祷告扫描影响
	var habitCount int64
	require.NoError(t, gdb.Model(&db.CompletionRecord{}).Where("kind = ?", string(KindHabit)).Count(&habitCount).Error)
	assert.EqualValues(t, 2, habitCount)
}

// flakyStore 只实现去重用到的方法，删除指定 ID 时失败
type flakyStore struct {
	CompletionStore
	records []db.CompletionRecord
	failIDs map[uint]bool
	deleted []uint
	cancel  func()
}

func (s *flakyStore) ScanKind(_ context.Context, _ TrackableKind, fn func([]db.CompletionRecord) error) error {
	return fn(s.records)
}

func (s *flakyStore) Delete(_ context.Context, id uint) (bool, error) {
	if s.failIDs[id] {
		return false, errors.New("disk I/O error")
	}
	s.deleted = append(s.deleted, id)
	if s.cancel != nil {
		s.cancel()
	}
	return true, nil
}

func duplicateRecords() []db.CompletionRecord {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return []db.CompletionRecord{
		{ID: 1, UserID: "a", TrackableID: "1", Day: base, CreatedAt: base},
		{ID: 2, UserID: "a", TrackableID: "1", Day: base.Add(5 * time.Hour), CreatedAt: base.Add(time.Minute)},
		{ID: 3, UserID: "b", TrackableID: "1", Day: base, CreatedAt: base},
		{ID: 4, UserID: "b", TrackableID: "1", Day: base.Add(9 * time.Hour), CreatedAt: base.Add(time.Minute)},
		{ID: 5, UserID: "c", TrackableID: "2", Day: base, CreatedAt: base},
		{ID: 6, UserID: "c", TrackableID: "2", Day: base.Add(time.Hour), CreatedAt: base.Add(time.Minute)},
	}
}

func TestReconcileCollectsGroupFailures(t *testing.T) {
	store := &flakyStore{records: duplicateRecords(), failIDs: map[uint]bool{3: true}}
	reconciler := NewReconciler(store, nil, nil)

	report, err := reconciler.Reconcile(context.Background(), KindHabit)
	require.NoError(t, err)
	assert.Equal(t, 3, report.GroupsFound)
	assert.Equal(t, 2, report.RecordsDeleted)
	assert.Equal(t, []uint{1, 5}, store.deleted)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "b", report.Failures[0].UserID)
	assert.Equal(t, utcDay(2024, time.May, 1), report.Failures[0].Day)
	assert.Contains(t, report.Failures[0].Error, "disk I/O error")
}

func TestReconcileStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &flakyStore{records: duplicateRecords(), cancel: cancel}
	reconciler := NewReconciler(store, nil, nil)

	report, err := reconciler.Reconcile(ctx, KindHabit)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, report.GroupsFound)
	assert.Equal(t, 1, report.RecordsDeleted)
	assert.Equal(t, []uint{1}, store.deleted)
}

func TestReconcileRejectsUnknownKind(t *testing.T) {
	reconciler := NewReconciler(&flakyStore{}, nil, nil)
	_, err := reconciler.Reconcile(context.Background(), TrackableKind("chore"))
	assert.ErrorIs(t, err, ErrInvalidTrackableKind)
}
