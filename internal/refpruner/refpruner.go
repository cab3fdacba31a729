// Package refpruner removes dangling blog references from user blog sets.
// Deleting a blog leaves its id in the owner's set; when pruning is enabled
// the service hands every successful delete to a Pruner, which batches the
// jobs and removes the references on a fixed interval.
package refpruner

import (
	"context"
	"time"

	"github.com/patric-chuzhbe/bloglist/internal/logger"
	"github.com/patric-chuzhbe/bloglist/internal/models"
)

type userBlogsRemover interface {
	RemoveUserBlogs(ctx context.Context, userBlogs map[string][]string) error
}

type Pruner struct {
	queue        chan *models.PruneJob
	db           userBlogsRemover
	flushEvery   time.Duration
	errorChannel chan error
	done         chan struct{}
}

func New(
	db userBlogsRemover,
	channelCapacity int,
	flushEvery time.Duration,
) *Pruner {
	return &Pruner{
		db:           db,
		queue:        make(chan *models.PruneJob, channelCapacity),
		flushEvery:   flushEvery,
		errorChannel: make(chan error, channelCapacity),
		done:         make(chan struct{}),
	}
}

// ListenErrors passes every flush error to callback until the pruner stops.
func (p *Pruner) ListenErrors(callback func(error)) {
	go func() {
		for err := range p.errorChannel {
			callback(err)
		}
	}()
}

func collectBlogsByUser(jobs []*models.PruneJob) map[string][]string {
	result := map[string][]string{}
	for _, job := range jobs {
		result[job.UserID] = append(result[job.UserID], job.BlogID)
	}

	return result
}

// Run starts the worker. Pending jobs are flushed once more when ctx is
// cancelled, after which the error channel is closed.
func (p *Pruner) Run(ctx context.Context) {
	go func() {
		defer close(p.done)
		defer close(p.errorChannel)

		ticker := time.NewTicker(p.flushEvery)
		defer ticker.Stop()

		var jobs []*models.PruneJob

		for {
			select {
			case job := <-p.queue:
				jobs = append(jobs, job)
			case <-ticker.C:
				jobs = p.flush(ctx, jobs)
			case <-ctx.Done():
				p.flush(context.Background(), p.drainQueue(jobs))
				return
			}
		}
	}()
}

func (p *Pruner) drainQueue(jobs []*models.PruneJob) []*models.PruneJob {
	for {
		select {
		case job := <-p.queue:
			jobs = append(jobs, job)
		default:
			return jobs
		}
	}
}

// Wait blocks until the worker started by Run has exited.
func (p *Pruner) Wait() {
	<-p.done
}

func (p *Pruner) flush(ctx context.Context, jobs []*models.PruneJob) []*models.PruneJob {
	if len(jobs) == 0 {
		return jobs
	}

	err := p.db.RemoveUserBlogs(ctx, collectBlogsByUser(jobs))
	if err != nil {
		select {
		case p.errorChannel <- err:
		default:
			logger.Log.Warnln("pruner error dropped, nobody is listening:", err)
		}
		return jobs
	}
	logger.Log.Infof("pruned %d dangling blog references", len(jobs))

	return nil
}

// EnqueueJob never blocks the caller: when the queue is full the job is
// dropped and the reference stays dangling.
func (p *Pruner) EnqueueJob(job *models.PruneJob) {
	select {
	case p.queue <- job:
	default:
		logger.Log.Warnln("pruner queue is full, dropping job for blog", job.BlogID)
	}
}
