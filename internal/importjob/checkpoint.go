package importjob

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/model"
)

// checkpoint buffers row outcomes and writes them as additive progress
// every few rows, bounding write volume per chunk.
type checkpoint struct {
	store interface {
		SaveImportProgress(ctx context.Context, id string, p model.ImportProgress) error
	}
	jobID   string
	every   int
	pending model.ImportProgress
	// total counts every row recorded, flushed or not.
	total int
}

func (c *checkpoint) succeeded() {
	c.pending.Processed++
	c.pending.Successful++
	c.total++
}

func (c *checkpoint) failed(row Row, err error) {
	c.pending.Processed++
	c.pending.Failed++
	c.pending.Errors = append(c.pending.Errors, model.ImportError{
		Row:       row.Line,
		Domain:    row.Domain,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	})
	c.total++
}

func (c *checkpoint) maybeFlush(ctx context.Context) error {
	if c.pending.Processed < c.every {
		return nil
	}
	return c.flush(ctx)
}

// flush writes buffered progress. It survives cancellation of ctx so that
// rows already done are never lost to a late deadline.
func (c *checkpoint) flush(ctx context.Context) error {
	if c.pending.Empty() {
		return nil
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.store.SaveImportProgress(wctx, c.jobID, c.pending); err != nil {
		return eris.Wrap(err, "importjob: save progress")
	}
	c.pending = model.ImportProgress{}
	return nil
}
