package push

import (
	"context"

	"github.com/99souls/flagengine/internal/dto"
)

// FlagApplier is the slice of internal/synchronizer.Synchronizer the flag
// worker needs. Both methods are already idempotent with respect to
// changeNumber, which is what makes replaying the same job a no-op.
type FlagApplier interface {
	ApplyInstantUpdate(ctx context.Context, def dto.FeatureFlag, previousChangeNumber int64) error
	SynchronizeFlags(ctx context.Context, till *int64) error
}

// SegmentApplier is the slice of internal/synchronizer.Synchronizer the
// segment worker needs.
type SegmentApplier interface {
	SynchronizeSegment(ctx context.Context, name string, till *int64) error
}

// RunFlagWorker drains queue until ctx is canceled or a Stop sentinel job is
// received. One goroutine per queue, per spec's "one worker task per update
// kind" requirement.
func RunFlagWorker(ctx context.Context, queue *FlagQueue, applier FlagApplier, onErr func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-queue.C():
			if job.Stop {
				return
			}
			var err error
			if job.FetchOnly || job.Definition == nil {
				till := job.ChangeNumber
				err = applier.SynchronizeFlags(ctx, &till)
			} else {
				err = applier.ApplyInstantUpdate(ctx, *job.Definition, job.PreviousChangeNumber)
			}
			if err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

// RunSegmentWorker is the segment-kind analog of RunFlagWorker.
func RunSegmentWorker(ctx context.Context, queue *SegmentQueue, applier SegmentApplier, onErr func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-queue.C():
			if job.Stop {
				return
			}
			till := job.ChangeNumber
			if err := applier.SynchronizeSegment(ctx, job.Name, &till); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
