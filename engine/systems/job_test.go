package systems

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemValidation(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(3, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, js.Workers())

	var completed, failed, done atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, js.Submit(JobTask{
			Name: "square",
			OnStart: func() (interface{}, error) {
				if i%5 == 0 {
					return nil, errors.New("multiple of five")
				}
				return i * i, nil
			},
			OnComplete: func(result interface{}) {
				assert.Equal(t, i*i, result)
				completed.Add(1)
			},
			OnFailure: func(err error) { failed.Add(1) },
			OnCompletionCallback: func() {
				done.Add(1)
				wg.Done()
			},
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(8), completed.Load())
	assert.Equal(t, int32(2), failed.Load())
	assert.Equal(t, int32(10), done.Load())

	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())
	assert.ErrorIs(t, js.Submit(JobTask{OnStart: func() (interface{}, error) { return nil, nil }}), ErrJobSystemClosed)
}

func TestJobSystemSurvivesPanickingJob(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)
	defer js.Shutdown()

	failures := make(chan error, 1)
	require.NoError(t, js.Submit(JobTask{
		Name:      "explode",
		OnStart:   func() (interface{}, error) { panic("index out of range") },
		OnFailure: func(err error) { failures <- err },
	}))
	err = <-failures
	assert.Contains(t, err.Error(), "explode")
	assert.Contains(t, err.Error(), "index out of range")

	results := make(chan interface{}, 1)
	require.NoError(t, js.Submit(JobTask{
		Name:       "after",
		OnStart:    func() (interface{}, error) { return 42, nil },
		OnComplete: func(result interface{}) { results <- result },
	}))
	assert.Equal(t, 42, <-results, "the worker keeps running")
}
