package importjob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/sells-group/prospect-enricher/internal/model"
)

func TestImportWorkflow_RunsChunksUntilDone(t *testing.T) {
	st := newSpyStore(t)
	r := newTestRunner(st, nil, nil, Config{BatchSize: 10})
	job := createJob(t, r, makeCSV(25))

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&Activities{Runner: r})

	env.ExecuteWorkflow(ImportWorkflow, job.ID)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res ProcessResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 25, res.NextWatermark)

	got, err := st.GetImportJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportStatusCompleted, got.Status)
	assert.Equal(t, 25, got.ProcessedRows)
}

func TestImportWorkflow_StopsOnCancelledChunk(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	var a *Activities
	env.RegisterActivity(a)

	env.OnActivity(a.ResumeChunk, mock.Anything, "job-1").
		Return(&ProcessResult{Status: StatusProcessing, NextWatermark: 10}, nil).Once()
	env.OnActivity(a.ResumeChunk, mock.Anything, "job-1").
		Return(&ProcessResult{Status: StatusCancelled, NextWatermark: 13, Done: true}, nil).Once()

	env.ExecuteWorkflow(ImportWorkflow, "job-1")
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res ProcessResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Equal(t, StatusCancelled, res.Status)
	env.AssertExpectations(t)
}

func TestActivities_UnknownJobIsNotRetried(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(&Activities{Runner: newTestRunner(newSpyStore(t), nil, nil, Config{})})

	var a *Activities
	_, err := env.ExecuteActivity(a.ResumeChunk, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
}
