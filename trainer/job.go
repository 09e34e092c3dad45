package trainer

import (
	"context"

	"github.com/arloliu/visco/dataset"
)

// Job is a training run in the background.
type Job struct {
	progress chan Progress
	done     chan struct{}
	cancel   context.CancelFunc

	result *Result
	err    error
}

// Start trains samples in a new goroutine and returns immediately.
//
// Progress events are delivered both to the configured callback and to
// Job.Progress. The channel is buffered for every event of the run, so an
// unread channel never stalls training; it is closed when the run ends.
func (t *Trainer) Start(ctx context.Context, samples []dataset.Sample) *Job {
	groups := dataset.GroupByMedia(samples)
	ctx, cancel := context.WithCancel(ctx)

	j := &Job{
		progress: make(chan Progress, 2*len(groups)),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	go func() {
		defer close(j.done)
		defer close(j.progress)
		defer cancel()

		j.result, j.err = t.run(ctx, groups, func(p Progress) {
			if t.cfg.Progress != nil {
				t.cfg.Progress(p)
			}
			j.progress <- p
		})
	}()

	return j
}

// Progress returns the progress channel.
func (j *Job) Progress() <-chan Progress {
	return j.progress
}

// Done is closed when the run ends.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel stops the run. Media types already training finish their current fit.
func (j *Job) Cancel() {
	j.cancel()
}

// Wait blocks until the run ends.
func (j *Job) Wait() (*Result, error) {
	<-j.done
	return j.result, j.err
}
