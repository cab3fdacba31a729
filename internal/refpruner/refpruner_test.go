package refpruner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/patric-chuzhbe/bloglist/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingRemover struct {
	mu    sync.Mutex
	calls []map[string][]string
	err   error
}

func (r *recordingRemover) RemoveUserBlogs(ctx context.Context, userBlogs map[string][]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userBlogs)
	return r.err
}

func (r *recordingRemover) removed() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := map[string][]string{}
	for _, call := range r.calls {
		for userID, blogIDs := range call {
			result[userID] = append(result[userID], blogIDs...)
		}
	}
	return result
}

func TestPrunerFlushesOnTick(t *testing.T) {
	remover := &recordingRemover{}
	pruner := New(remover, 10, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Run(ctx)

	pruner.EnqueueJob(&models.PruneJob{UserID: "u1", BlogID: "b1"})
	pruner.EnqueueJob(&models.PruneJob{UserID: "u1", BlogID: "b2"})
	pruner.EnqueueJob(&models.PruneJob{UserID: "u2", BlogID: "b3"})

	assert.Eventually(t, func() bool {
		removed := remover.removed()
		return len(removed["u1"]) == 2 && len(removed["u2"]) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	pruner.Wait()
}

func TestPrunerFlushesPendingJobsOnStop(t *testing.T) {
	remover := &recordingRemover{}
	pruner := New(remover, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Run(ctx)
	pruner.EnqueueJob(&models.PruneJob{UserID: "u1", BlogID: "b1"})

	cancel()
	pruner.Wait()

	assert.Equal(t, map[string][]string{"u1": {"b1"}}, remover.removed())
}

func TestPrunerReportsErrors(t *testing.T) {
	remover := &recordingRemover{err: errors.New("store is down")}
	pruner := New(remover, 10, 10*time.Millisecond)

	errs := make(chan error, 1)
	pruner.ListenErrors(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Run(ctx)
	pruner.EnqueueJob(&models.PruneJob{UserID: "u1", BlogID: "b1"})

	select {
	case err := <-errs:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store is down")
	case <-time.After(time.Second):
		t.Fatal("expected an error from the pruner")
	}

	cancel()
	pruner.Wait()
}

func TestEnqueueJobDoesNotBlockWhenQueueIsFull(t *testing.T) {
	pruner := New(&recordingRemover{}, 1, time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pruner.EnqueueJob(&models.PruneJob{UserID: "u1", BlogID: "b1"})
		pruner.EnqueueJob(&models.PruneJob{UserID: "u1", BlogID: "b2"})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EnqueueJob blocked on a full queue")
	}
}
