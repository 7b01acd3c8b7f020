package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/importjob"
)

var (
	importFile     string
	importName     string
	importTemporal bool
	importJobID    string
	importLoop     bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Create and run chunked CSV traffic imports",
}

var importCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an import job from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initBase(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		payload, err := importjob.LoadPayload(importFile)
		if err != nil {
			return eris.Wrap(err, "load import file")
		}
		name := importName
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(importFile), filepath.Ext(importFile))
		}

		job, err := env.Imports.CreateJob(ctx, name, payload)
		if err != nil {
			return eris.Wrap(err, "create import job")
		}
		zap.L().Info("import job created",
			zap.String("job_id", job.ID),
			zap.Int("rows", job.TotalRows),
		)

		if importTemporal {
			c, err := dialTemporal()
			if err != nil {
				return err
			}
			defer c.Close()
			run, err := importjob.StartWorkflow(ctx, c, cfg.Temporal.TaskQueue, job.ID)
			if err != nil {
				return eris.Wrap(err, "start import workflow")
			}
			zap.L().Info("import workflow started",
				zap.String("workflow_id", run.GetID()),
				zap.String("run_id", run.GetRunID()),
			)
			return nil
		}

		if err := env.Imports.Kick(ctx, job.ID); err != nil {
			return eris.Wrap(err, "schedule first chunk")
		}
		return printJSON(job)
	},
}

var importResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Process the next chunk of an import job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initBase(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := resumeImport(ctx, env.Imports, importJobID, importLoop)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var importCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel an import job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initBase(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Imports.Cancel(ctx, importJobID)
		if err != nil {
			return eris.Wrap(err, "cancel import")
		}
		return printJSON(job)
	},
}

var importWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that drives import workflows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initBase(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := dialTemporal()
		if err != nil {
			return err
		}
		defer c.Close()

		w := importjob.NewWorker(c, cfg.Temporal.TaskQueue, &importjob.Activities{Runner: env.Imports})
		zap.L().Info("import worker started", zap.String("task_queue", cfg.Temporal.TaskQueue))
		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "import worker")
		}
		return nil
	},
}

// resumeImport runs one chunk, or keeps running chunks in-process until the
// job is done when loop is set.
func resumeImport(ctx context.Context, r *importjob.Runner, jobID string, loop bool) (*importjob.ProcessResult, error) {
	for {
		res, err := r.Resume(ctx, jobID)
		if err != nil {
			return nil, eris.Wrap(err, "resume import")
		}
		zap.L().Info("import chunk finished",
			zap.String("job_id", jobID),
			zap.String("status", string(res.Status)),
			zap.Int("processed", res.Processed),
			zap.Int("watermark", res.NextWatermark),
		)
		if res.Done || !loop {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, nil
		}
	}
}

func dialTemporal() (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return nil, eris.Wrap(err, "dial temporal")
	}
	return c, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	importCreateCmd.Flags().StringVar(&importFile, "file", "", "path to CSV or XLSX file (required)")
	importCreateCmd.Flags().StringVar(&importName, "name", "", "job name (default: file name)")
	importCreateCmd.Flags().BoolVar(&importTemporal, "temporal", false, "drive the job with a Temporal workflow")
	_ = importCreateCmd.MarkFlagRequired("file")

	importResumeCmd.Flags().StringVar(&importJobID, "job", "", "import job ID (required)")
	importResumeCmd.Flags().BoolVar(&importLoop, "loop", false, "keep processing chunks until the job finishes")
	_ = importResumeCmd.MarkFlagRequired("job")

	importCancelCmd.Flags().StringVar(&importJobID, "job", "", "import job ID (required)")
	_ = importCancelCmd.MarkFlagRequired("job")

	importCmd.AddCommand(importCreateCmd, importResumeCmd, importCancelCmd, importWorkerCmd)
	rootCmd.AddCommand(importCmd)
}
