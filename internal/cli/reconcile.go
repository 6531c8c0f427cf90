package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/ritualog/internal/service"
	"github.com/spf13/cobra"
)

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Collapse duplicate completion records into one per day",
		Long: `Scan every completion record of the given kind, group them by
user, trackable and canonical UTC day, and keep only the newest record of
each group. Safe to re-run; interrupting stops between groups and keeps
whatever was already cleaned.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(kind)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			gdb, closeDB, err := openDatabase(rootOpts)
			if err != nil {
				return err
			}
			defer closeDB()

			store := service.NewGormCompletionStore(gdb).WithBatchSize(batchSize)
			reconciler := service.NewReconciler(store, nil, nil)
			return runReconcile(ctx, reconciler, kinds, rootOpts.Format, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "all", "trackable kind (habit|prayer|all)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "records loaded per batch")

	return cmd
}

func parseKinds(raw string) ([]service.TrackableKind, error) {
	if raw == "" || raw == "all" {
		return []service.TrackableKind{service.KindHabit, service.KindPrayer}, nil
	}
	kind, err := service.ParseTrackableKind(raw)
	if err != nil {
		return nil, err
	}
	return []service.TrackableKind{kind}, nil
}

func runReconcile(ctx context.Context, reconciler *service.Reconciler, kinds []service.TrackableKind, format string, w io.Writer) error {
	reports := make([]service.ReconcileReport, 0, len(kinds))
	var runErr error
	for _, kind := range kinds {
		report, err := reconciler.Reconcile(ctx, kind)
		reports = append(reports, report)
		if err != nil {
			runErr = fmt.Errorf("reconcile %s: %w", kind, err)
			break
		}
	}

	if format == "json" {
		if err := writeJSON(w, reports); err != nil {
			return err
		}
		return runErr
	}

	for _, report := range reports {
		fmt.Fprintf(w, "%s: scanned=%d groups=%d deleted=%d failed=%d\n",
			report.Kind, report.RecordsScanned, report.GroupsFound, report.RecordsDeleted, len(report.Failures))
		for _, failure := range report.Failures {
			fmt.Fprintf(w, "  ! user=%s trackable=%s day=%s: %s\n",
				failure.UserID, failure.TrackableID, failure.Day.Format("2006-01-02"), failure.Error)
		}
	}
	return runErr
}
