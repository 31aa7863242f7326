package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-extraction-backend/internal/config"
	"github.com/tbourn/recipe-extraction-backend/internal/ledger"
	"github.com/tbourn/recipe-extraction-backend/internal/services"
)

// opener returns a migrated database and the configuration it came from.
type opener func() (*gorm.DB, config.Config, error)

// app is what every subcommand works against once the root command opened
// the database.
type app struct {
	open   opener
	db     *gorm.DB
	cfg    config.Config
	ledger *ledger.Ledger
	jobs   *services.JobManager
}

func newRootCmd(open opener) *cobra.Command {
	a := &app{open: open}

	root := &cobra.Command{
		Use:   "recipectl",
		Short: "Maintenance commands for the recipe extraction backend",
		Long: `recipectl runs the sweeper's passes and inspects credit balances.

Examples:
  recipectl sweep                       # expire grants and recover stuck jobs
  recipectl expire-grants
  recipectl recover-stuck --older-than 30m
  recipectl balance user123
  recipectl weekly-reset user123`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := a.open()
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			a.db, a.cfg = db, cfg
			a.ledger = ledger.New(db)
			// Recovery never calls the engine or touches uploads.
			a.jobs = services.NewJobManager(db, a.ledger, nil, nil)
			return nil
		},
	}

	root.AddCommand(
		a.sweepCmd(),
		a.expireGrantsCmd(),
		a.recoverStuckCmd(),
		a.balanceCmd(),
		a.weeklyResetCmd(),
	)
	return root
}

func (a *app) sweepCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one full sweeper pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				olderThan = a.cfg.Workers.JobTimeout
			}
			s := &services.Sweeper{
				Ledger:     a.ledger,
				Jobs:       a.jobs,
				JobTimeout: olderThan,
				Logger:     log.Logger,
			}
			res, err := s.SweepOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "grants expired: %d\njobs recovered: %d\n", res.GrantsExpired, res.JobsRecovered)
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "processing age treated as stuck (default JOB_TIMEOUT)")
	return cmd
}

func (a *app) expireGrantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-grants",
		Short: "Zero every referral grant past its expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.ledger.ExpireGrants(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "grants expired: %d\n", n)
			return err
		},
	}
}

func (a *app) recoverStuckCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "recover-stuck",
		Short: "Fail and refund jobs processing for longer than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				olderThan = a.cfg.Workers.JobTimeout
			}
			n, err := a.jobs.RecoverStuck(cmd.Context(), olderThan)
			fmt.Fprintf(cmd.OutOrStdout(), "jobs recovered: %d\n", n)
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "processing age treated as stuck (default JOB_TIMEOUT)")
	return cmd
}

func (a *app) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Print a user's balance after lazy reset and expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.ledger.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}

func (a *app) weeklyResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weekly-reset <user-id>",
		Short: "Apply a due weekly reset for one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reset, err := a.ledger.WeeklyReset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if reset {
				fmt.Fprintln(cmd.OutOrStdout(), "reset applied")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no reset due")
			}
			return nil
		},
	}
}
