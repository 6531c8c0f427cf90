package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ritualog/internal/db"
	"github.com/ritualog/internal/service"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// SeedSummary 种子数据统计
type SeedSummary struct {
	UserID      string `json:"user_id"`
	Habits      int    `json:"habits"`
	Completions int    `json:"completions"`
	LegacyRows  int    `json:"legacy_rows"`
}

var seedHabits = []service.HabitInput{
	{Name: "晨跑", Description: "每天 5 公里", TypeTag: "健康"},
	{Name: "阅读", Description: "睡前 30 分钟", TypeTag: "学习"},
	{Name: "冥想", Description: "10 分钟", TypeTag: "健康"},
	{Name: "写日记", TypeTag: "生活"},
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var userID string
	var days int
	var duplicates bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo habits and completion history for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, closeDB, err := openDatabase(rootOpts)
			if err != nil {
				return err
			}
			defer closeDB()

			summary, err := seedUser(cmd.Context(), gdb, userID, days, duplicates, service.SystemClock{})
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded user %s: %d habits, %d completions, %d legacy rows\n",
				summary.UserID, summary.Habits, summary.Completions, summary.LegacyRows)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "demo", "user id to seed")
	cmd.Flags().IntVar(&days, "days", 60, "days of history to generate")
	cmd.Flags().BoolVar(&duplicates, "legacy-duplicates", true, "also write non-canonical legacy rows")

	return cmd
}

// seedUser 生成可预测的打卡历史，其中夹杂缺勤日和旧规则写入的非零点记录
func seedUser(ctx context.Context, gdb *gorm.DB, userID string, days int, duplicates bool, clock service.Clock) (SeedSummary, error) {
	summary := SeedSummary{UserID: userID}
	if days <= 0 {
		return summary, errors.New("days must be positive")
	}

	store := service.NewGormCompletionStore(gdb)
	habits := service.NewHabitService(gdb, store, nil)
	toggles := service.NewToggleService(store, habits, nil, nil)

	ids := make([]string, 0, len(seedHabits))
	for _, input := range seedHabits {
		habit, err := habits.Create(ctx, userID, input)
		if err != nil {
			return summary, err
		}
		ids = append(ids, service.HabitTrackableID(habit.ID))
		summary.Habits++
	}

	today := service.CanonicalDay(clock.Now())
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, -i)

		for j, id := range ids {
			if i%len(ids) == j && i%3 == 0 {
				continue
			}
			if _, err := toggles.Toggle(ctx, userID, service.KindHabit, id, day); err != nil {
				return summary, err
			}
			summary.Completions++
		}

		for j, slot := range service.PrayerSlots {
			prayed := !(i%6 == 5 && j == 0)
			if _, err := toggles.RecordPrayer(ctx, userID, slot, day, prayed, ""); err != nil {
				return summary, err
			}
			summary.Completions++
		}

		// 旧规则下本地时区零点写入的重复记录
		if duplicates && i%7 == 0 && len(ids) > 0 {
			legacy := db.CompletionRecord{
				UserID:      userID,
				Kind:        string(service.KindHabit),
				TrackableID: ids[len(ids)-1],
				Day:         day.Add(16 * time.Hour),
				State:       true,
				CreatedAt:   day.Add(-time.Hour),
			}
			if err := gdb.WithContext(ctx).Create(&legacy).Error; err != nil {
				return summary, err
			}
			summary.LegacyRows++
		}
	}

	return summary, nil
}
