package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ritualog/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type toggleFixture struct {
	gdb    *gorm.DB
	store  *GormCompletionStore
	habits *HabitService
	toggle *ToggleService
}

func newToggleFixture(t *testing.T) toggleFixture {
	t.Helper()
	gdb := setupServiceTestDB(t)
	store := NewGormCompletionStore(gdb)
	habits := NewHabitService(gdb, store, nil)
	return toggleFixture{
		gdb:    gdb,
		store:  store,
		habits: habits,
		toggle: NewToggleService(store, habits, nil, nil),
	}
}

func countRecords(t *testing.T, gdb *gorm.DB, userID string, kind TrackableKind, trackableID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(&db.CompletionRecord{}).
		Where("user_id = ? AND kind = ? AND trackable_id = ?", userID, string(kind), trackableID).
		Count(&n).Error)
	return n
}

func TestToggleHabitRoundTrip(t *testing.T) {
	f := newToggleFixture(t)
	ctx := context.Background()
	habit := mustCreateHabit(t, f.habits, "u1", "拉伸")
	id := HabitTrackableID(habit.ID)

	at := time.Date(2024, 5, 1, 21, 15, 0, 0, time.FixedZone("UTC+8", 8*3600)) // 2024-05-01T13:15Z

	state, err := f.toggle.Toggle(ctx, "u1", KindHabit, id, at)
	require.NoError(t, err)
	assert.True(t, state)

	record, err := f.store.FindDay(ctx, RecordKey{UserID: "u1", Kind: KindHabit, TrackableID: id, Day: at})
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.Day.Equal(utcDay(2024, time.May, 1)))

	state, err = f.toggle.Toggle(ctx, "u1", KindHabit, id, at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, state)
	assert.Zero(t, countRecords(t, f.gdb, "u1", KindHabit, id))
}

func TestTogglePrayerStates(t *testing.T) {
	f := newToggleFixture(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 2, 4, 50, 0, 0, time.UTC)

	// 先登记为“未完成”
	record, err := f.toggle.RecordPrayer(ctx, "u1", "fajr", at, false, " 迟到 ")
	require.NoError(t, err)
	assert.False(t, record.State)
	assert.Equal(t, "迟到", record.Note)

	state, err := f.toggle.Toggle(ctx, "u1", KindPrayer, "fajr", at)
	require.NoError(t, err)
	assert.True(t, state)
	assert.EqualValues(t, 1, countRecords(t, f.gdb, "u1", KindPrayer, "fajr"))

	state, err = f.toggle.Toggle(ctx, "u1", KindPrayer, "fajr", at)
	require.NoError(t, err)
	assert.False(t, state)
	assert.Zero(t, countRecords(t, f.gdb, "u1", KindPrayer, "fajr"))

	// 无记录时翻转直接创建 prayed
	state, err = f.toggle.Toggle(ctx, "u1", KindPrayer, "isha", at)
	require.NoError(t, err)
	assert.True(t, state)
	state, err = f.toggle.Toggle(ctx, "u1", KindPrayer, "isha", at)
	require.NoError(t, err)
	assert.False(t, state)
}

func TestRecordPrayerUpsertsSingleRow(t *testing.T) {
	f := newToggleFixture(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

	_, err := f.toggle.RecordPrayer(ctx, "u1", "asr", at, false, "")
	require.NoError(t, err)
	record, err := f.toggle.RecordPrayer(ctx, "u1", "asr", at.Add(3*time.Hour), true, "补记")
	require.NoError(t, err)

	assert.True(t, record.State)
	assert.Equal(t, "补记", record.Note)
	assert.EqualValues(t, 1, countRecords(t, f.gdb, "u1", KindPrayer, "asr"))
}

func TestToggleRejectsUnknownTrackable(t *testing.T) {
	f := newToggleFixture(t)
	ctx := context.Background()
	habit := mustCreateHabit(t, f.habits, "owner", "跑步")
	at := utcDay(2024, time.May, 3)

	_, err := f.toggle.Toggle(ctx, "intruder", KindHabit, HabitTrackableID(habit.ID), at)
	assert.True(t, errors.Is(err, ErrUnknownTrackable))

	_, err = f.toggle.Toggle(ctx, "u1", KindPrayer, "tahajjud", at)
	assert.True(t, errors.Is(err, ErrUnknownTrackable))

	_, err = f.toggle.Toggle(ctx, "u1", TrackableKind("chore"), "1", at)
	assert.True(t, errors.Is(err, ErrInvalidTrackableKind))

	assert.Zero(t, countRecords(t, f.gdb, "intruder", KindHabit, HabitTrackableID(habit.ID)))
}

func TestToggleRemovesLegacyDuplicates(t *testing.T) {
	f := newToggleFixture(t)
	ctx := context.Background()
	habit := mustCreateHabit(t, f.habits, "u1", "读书")
	id := HabitTrackableID(habit.ID)

	// 旧规则写入的非零点记录与规范记录并存
	insertRecord(t, f.gdb, db.CompletionRecord{UserID: "u1", Kind: string(KindHabit), TrackableID: id, Day: time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC), State: true})
	insertRecord(t, f.gdb, db.CompletionRecord{UserID: "u1", Kind: string(KindHabit), TrackableID: id, Day: time.Date(2024, 5, 4, 16, 0, 0, 0, time.UTC), State: true})

	state, err := f.toggle.Toggle(ctx, "u1", KindHabit, id, utcDay(2024, time.May, 4))
	require.NoError(t, err)
	assert.False(t, state)
	assert.Zero(t, countRecords(t, f.gdb, "u1", KindHabit, id))
}

func TestStoreInsertIsAtomicOnKey(t *testing.T) {
	f := newToggleFixture(t)
	ctx := context.Background()
	key := RecordKey{UserID: "u1", Kind: KindPrayer, TrackableID: "zuhr", Day: time.Date(2024, 5, 5, 13, 0, 0, 0, time.UTC)}

	created, err := f.store.Insert(ctx, key, true)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.store.Insert(ctx, key, true)
	require.NoError(t, err)
	assert.False(t, created)
	assert.EqualValues(t, 1, countRecords(t, f.gdb, "u1", KindPrayer, "zuhr"))
}

func TestRecordPrayerUpdatesLegacyRow(t *testing.T) {
	f := newToggleFixture(t)
	ctx := context.Background()

	legacy := insertRecord(t, f.gdb, db.CompletionRecord{
		UserID:      "u1",
		Kind:        string(KindPrayer),
		TrackableID: "fajr",
		Day:         time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC),
		State:       false,
	})

	record, err := f.toggle.RecordPrayer(ctx, "u1", "fajr", utcDay(2024, time.May, 1), true, "")
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, record.ID)
	assert.True(t, record.State)
	assert.EqualValues(t, 1, countRecords(t, f.gdb, "u1", KindPrayer, "fajr"))

	report, err := NewReconciler(f.store, nil, nil).Reconcile(ctx, KindPrayer)
	require.NoError(t, err)
	assert.Zero(t, report.GroupsFound)
}

func TestStoreDayWindowFollowsUTCForOffsetRows(t *testing.T) {
	f := newToggleFixture(t)
	ctx := context.Background()
	habit := mustCreateHabit(t, f.habits, "u1", "散步")
	id := HabitTrackableID(habit.ID)

	// 旧规则按 UTC+8 本地零点写入：实际时刻为 2024-05-01T16:00Z
	utc8 := time.FixedZone("UTC+8", 8*3600)
	insertRecord(t, f.gdb, db.CompletionRecord{
		UserID:      "u1",
		Kind:        string(KindHabit),
		TrackableID: id,
		Day:         time.Date(2024, 5, 2, 0, 0, 0, 0, utc8),
		State:       true,
	})

	may1 := RecordKey{UserID: "u1", Kind: KindHabit, TrackableID: id, Day: utcDay(2024, time.May, 1)}
	may2 := RecordKey{UserID: "u1", Kind: KindHabit, TrackableID: id, Day: utcDay(2024, time.May, 2)}

	found, err := f.store.FindDay(ctx, may1)
	require.NoError(t, err)
	require.NotNil(t, found)

	found, err = f.store.FindDay(ctx, may2)
	require.NoError(t, err)
	assert.Nil(t, found)

	records, err := f.store.ListRange(ctx, "u1", KindHabit, may1.Day, may1.Day)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = f.store.ListRange(ctx, "u1", KindHabit, may2.Day, may2.Day)
	require.NoError(t, err)
	assert.Empty(t, records)

	// 5 月 2 日从未完成，翻转应新建记录而不是删除 5 月 1 日的记录
	state, err := f.toggle.Toggle(ctx, "u1", KindHabit, id, may2.Day)
	require.NoError(t, err)
	assert.True(t, state)
	assert.EqualValues(t, 2, countRecords(t, f.gdb, "u1", KindHabit, id))

	// 关闭 5 月 1 日只删除该日的记录
	state, err = f.toggle.Toggle(ctx, "u1", KindHabit, id, may1.Day)
	require.NoError(t, err)
	assert.False(t, state)
	assert.EqualValues(t, 1, countRecords(t, f.gdb, "u1", KindHabit, id))
}
