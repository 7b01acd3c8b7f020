package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/store"
)

var (
	reconcileStaleMins int
	resetProspectID    string
	resetNote          string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// initBase migrates on open.
		env, err := initBase(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		zap.L().Info("schema up to date", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Settle prospects left in enriching by a crashed run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initBase(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mins := reconcileStaleMins
		if mins <= 0 {
			mins = cfg.Bulk.StaleLeaseMins
		}
		n, err := env.Reconciler.SweepStale(ctx, time.Duration(mins)*time.Minute)
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}
		zap.L().Info("reconcile complete", zap.Int("settled", n), zap.Int("stale_mins", mins))
		return nil
	},
}

var prospectCmd = &cobra.Command{
	Use:   "prospect",
	Short: "Inspect and manage prospects",
}

var prospectResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Allow another enrichment attempt for a prospect (manual review)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initBase(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Store.GetProspect(ctx, resetProspectID)
		if err != nil {
			return eris.Wrap(err, "load prospect")
		}
		err = env.Store.ResetProspect(ctx, p.ID, resetNote, time.Now().Add(-cfg.Enrich.LeaseTTL()))
		if eris.Is(err, store.ErrConflict) {
			return eris.Errorf("prospect %s is leased by a running enrichment (owner %s)", p.ID, p.LockedBy)
		}
		if err != nil {
			return eris.Wrap(err, "reset prospect")
		}
		zap.L().Info("prospect reset", zap.String("prospect", p.ID), zap.String("previous_status", string(p.Status)))
		return nil
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and write runtime feature flags",
}

var settingsSocialCmd = &cobra.Command{
	Use:   "social [on|off]",
	Short: "Show or toggle social page scraping",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initBase(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			on, err := parseToggle(args[0])
			if err != nil {
				return err
			}
			if err := env.Store.SetSetting(ctx, store.SettingSocialScraping, strconv.FormatBool(on)); err != nil {
				return eris.Wrap(err, "save setting")
			}
		}

		v, ok, err := env.Store.GetSetting(ctx, store.SettingSocialScraping)
		if err != nil {
			return eris.Wrap(err, "read setting")
		}
		if !ok {
			v = strconv.FormatBool(cfg.Enrich.SocialScrapingDefault) + " (default)"
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", store.SettingSocialScraping, v)
		return err
	},
}

func parseToggle(s string) (bool, error) {
	switch s {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, eris.Errorf("expected on or off, got %q", s)
}

func init() {
	reconcileCmd.Flags().IntVar(&reconcileStaleMins, "stale-mins", 0, "lease age in minutes treated as stale (default from config)")

	prospectResetCmd.Flags().StringVar(&resetProspectID, "id", "", "prospect ID (required)")
	prospectResetCmd.Flags().StringVar(&resetNote, "note", "Manual review: reset for another enrichment attempt", "note appended to the prospect")
	_ = prospectResetCmd.MarkFlagRequired("id")
	prospectCmd.AddCommand(prospectResetCmd)

	settingsCmd.AddCommand(settingsSocialCmd)

	rootCmd.AddCommand(migrateCmd, reconcileCmd, prospectCmd, settingsCmd)
}
