package importjob

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// maxChunksPerRun bounds workflow history before continuing as new.
const maxChunksPerRun = 200

// Activities exposes the runner to Temporal.
type Activities struct {
	Runner *Runner
}

// ResumeChunk runs one chunk of an import job.
func (a *Activities) ResumeChunk(ctx context.Context, jobID string) (*ProcessResult, error) {
	res, err := a.Runner.Resume(ctx, jobID)
	if eris.Is(err, ErrJobNotFound) {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "JobNotFound", err)
	}
	return res, err
}

// ImportWorkflow drives an import job to a terminal status by running
// ResumeChunk until it reports done.
func ImportWorkflow(ctx workflow.Context, jobID string) (*ProcessResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})
	logger := workflow.GetLogger(ctx)

	var a *Activities
	for i := 0; i < maxChunksPerRun; i++ {
		var res ProcessResult
		if err := workflow.ExecuteActivity(ctx, a.ResumeChunk, jobID).Get(ctx, &res); err != nil {
			return nil, err
		}
		logger.Info("import chunk finished", "job_id", jobID, "status", string(res.Status), "watermark", res.NextWatermark)
		if res.Done {
			return &res, nil
		}
	}
	return nil, workflow.NewContinueAsNewError(ctx, ImportWorkflow, jobID)
}

// WorkflowID is the Temporal workflow id for an import job. One workflow
// runs per job.
func WorkflowID(jobID string) string {
	return "import-" + jobID
}

// StartWorkflow starts ImportWorkflow for jobID on taskQueue.
func StartWorkflow(ctx context.Context, c client.Client, taskQueue, jobID string) (client.WorkflowRun, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(jobID),
		TaskQueue: taskQueue,
	}, ImportWorkflow, jobID)
	if err != nil {
		return nil, eris.Wrapf(err, "importjob: start workflow for %s", jobID)
	}
	return run, nil
}

// NewWorker registers the import workflow and activities on taskQueue.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(ImportWorkflow)
	w.RegisterActivity(acts)
	return w
}
