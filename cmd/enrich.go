package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/bulk"
	"github.com/sells-group/prospect-enricher/internal/enrich"
	"github.com/sells-group/prospect-enricher/internal/model"
)

var (
	enrichProspectID string
	bulkIDs          []string
	bulkMode         string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a single prospect",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Orchestrator.Enrich(ctx, enrichProspectID)
		if err != nil && !eris.Is(err, enrich.ErrAlreadyAttempted) {
			return eris.Wrap(err, "enrich prospect")
		}

		zap.L().Info("enrichment finished",
			zap.String("prospect", enrichProspectID),
			zap.String("status", string(res.Status)),
			zap.Int("contacts", res.ContactsFound),
			zap.Bool("succeeded", res.Succeeded()),
		)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Run a bulk enrichment job, streaming NDJSON progress to stdout",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ids := make([]string, 0, len(bulkIDs))
		for _, id := range bulkIDs {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}

		run, err := env.Bulk.Start(ctx, bulk.Request{
			ProspectIDs: ids,
			Mode:        model.ProcessingMode(bulkMode),
		})
		if err != nil {
			return eris.Wrap(err, "start bulk job")
		}

		bulk.NewNDJSONWriter(os.Stdout).Drain(run.Events())
		<-run.Done()

		processed, succeeded, failed := run.Counts()
		zap.L().Info("bulk job finished",
			zap.Int("processed", processed),
			zap.Int("succeeded", succeeded),
			zap.Int("failed", failed),
		)
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichProspectID, "prospect", "", "prospect ID to enrich (required)")
	_ = enrichCmd.MarkFlagRequired("prospect")

	bulkCmd.Flags().StringSliceVar(&bulkIDs, "ids", nil, "comma-separated prospect IDs (required)")
	bulkCmd.Flags().StringVar(&bulkMode, "mode", string(model.ModeSequential), "processing mode: sequential or parallel")
	_ = bulkCmd.MarkFlagRequired("ids")

	rootCmd.AddCommand(enrichCmd, bulkCmd)
}
