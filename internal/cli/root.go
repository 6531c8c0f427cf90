package cli

import (
	"fmt"
	"slices"

	"github.com/ritualog/internal/config"
	"github.com/ritualog/internal/db"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabasePath string
	Format       string // "json" | "text"
	Verbose      bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for ritualctl.
func NewRootCommand() *cobra.Command {
	cfg := config.Load()
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ritualctl",
		Short: "Maintenance commands for the ritualog service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DatabasePath, "db", cfg.DatabasePath, "sqlite database path")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts, cfg.JWTSecret))

	return cmd
}

func openDatabase(opts *RootOptions) (*gorm.DB, func(), error) {
	level := gormlogger.Silent
	if opts.Verbose {
		level = gormlogger.Info
	}
	gdb, err := db.Open(opts.DatabasePath, level)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closeFn := func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return gdb, closeFn, nil
}
