package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, history int) *Registry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRegistry(ctx, history)
	t.Cleanup(func() {
		cancel()
		<-r.Done()
	})
	return r
}

func waitFor(t *testing.T, r *Registry, id string) Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := r.Wait(ctx, id)
	require.NoError(t, err)
	return job
}

func TestSubmit_Succeeds(t *testing.T) {
	r := newTestRegistry(t, 10)

	job, err := r.Submit("import", "items", func(context.Context) (interface{}, error) {
		return map[string]int{"indexed": 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Pending, job.Status)
	assert.Equal(t, "import", job.Kind)
	assert.Equal(t, "items", job.Entity)
	assert.NotEmpty(t, job.ID)

	done := waitFor(t, r, job.ID)
	assert.Equal(t, Succeeded, done.Status)
	assert.True(t, done.Done())
	assert.Equal(t, map[string]int{"indexed": 3}, done.Result)
	require.NotNil(t, done.FinishedAt)
	assert.Empty(t, done.Error)
}

func TestSubmit_Fails(t *testing.T) {
	r := newTestRegistry(t, 10)

	job, err := r.Submit("configure", "", func(context.Context) (interface{}, error) {
		return nil, errors.New("disk full")
	})
	require.NoError(t, err)

	done := waitFor(t, r, job.ID)
	assert.Equal(t, Failed, done.Status)
	assert.Equal(t, "disk full", done.Error)
	assert.Nil(t, done.Result)
}

func TestSubmit_RecoversPanics(t *testing.T) {
	r := newTestRegistry(t, 10)

	job, err := r.Submit("flush", "races", func(context.Context) (interface{}, error) {
		panic("boom")
	})
	require.NoError(t, err)

	done := waitFor(t, r, job.ID)
	assert.Equal(t, Failed, done.Status)
	assert.Contains(t, done.Error, "boom")
}

func TestJobsRunInOrder(t *testing.T) {
	r := newTestRegistry(t, 10)

	var order []int
	var last string
	for i := 0; i < 5; i++ {
		i := i
		job, err := r.Submit("import", "items", func(context.Context) (interface{}, error) {
			order = append(order, i)
			return nil, nil
		})
		require.NoError(t, err)
		last = job.ID
	}

	waitFor(t, r, last)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)

	listed := r.List()
	require.Len(t, listed, 5)
	assert.Equal(t, last, listed[0].ID, "newest first")
}

func TestHistoryIsBounded(t *testing.T) {
	r := newTestRegistry(t, 3)

	var ids []string
	for i := 0; i < 6; i++ {
		job, err := r.Submit("import", fmt.Sprint(i), func(context.Context) (interface{}, error) { return nil, nil })
		require.NoError(t, err)
		waitFor(t, r, job.ID)
		ids = append(ids, job.ID)
	}

	assert.Len(t, r.List(), 3)
	_, err := r.Get(ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(ids[5])
	assert.NoError(t, err)
}

func TestGet_Unknown(t *testing.T) {
	r := newTestRegistry(t, 10)

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoppedRegistry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRegistry(ctx, 10)

	release := make(chan struct{})
	blocking, err := r.Submit("import", "items", func(context.Context) (interface{}, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	queued, err := r.Submit("import", "races", func(context.Context) (interface{}, error) { return nil, nil })
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		job, _ := r.Get(blocking.ID)
		return job.Status == Running
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	close(release)
	<-r.Done()

	first, err := r.Get(blocking.ID)
	require.NoError(t, err)
	assert.Equal(t, Succeeded, first.Status)

	second, err := r.Get(queued.ID)
	require.NoError(t, err)
	assert.True(t, second.Done())

	_, err = r.Submit("import", "items", func(context.Context) (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestStop_EveryAcceptedJobFinishes(t *testing.T) {
	for round := 0; round < 20; round++ {
		ctx, cancel := context.WithCancel(context.Background())
		r := NewRegistry(ctx, 1000)

		var (
			mu       sync.Mutex
			accepted []string
			wg       sync.WaitGroup
		)
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					job, err := r.Submit("flush", "items", func(context.Context) (interface{}, error) { return nil, nil })
					if err != nil {
						assert.ErrorIs(t, err, ErrStopped)
						return
					}
					mu.Lock()
					accepted = append(accepted, job.ID)
					mu.Unlock()
				}
			}()
		}
		cancel()
		wg.Wait()
		<-r.Done()

		for _, id := range accepted {
			job := waitFor(t, r, id)
			assert.True(t, job.Done(), "round %d job %s", round, id)
		}
	}
}
