package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/unclebandit/outreach-service/internal/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type job struct {
	ID string `json:"id"`
}

func TestInMemoryQueueDeliversJSON(t *testing.T) {
	q := queue.NewInMemoryQueue(nil)
	got := make(chan job, 1)
	require.NoError(t, q.Subscribe("jobs", func(_ context.Context, body []byte) error {
		var j job
		if err := json.Unmarshal(body, &j); err != nil {
			return err
		}
		got <- j
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), "jobs", job{ID: "b1"}))
	select {
	case j := <-got:
		assert.Equal(t, "b1", j.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("job not delivered")
	}
	require.NoError(t, q.Close())
}

func TestInMemoryQueueDoesNotRetry(t *testing.T) {
	q := queue.NewInMemoryQueue(nil)
	var calls int32
	require.NoError(t, q.Subscribe("jobs", func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("transport down")
	}))

	require.NoError(t, q.Publish(context.Background(), "jobs", job{ID: "b1"}))
	require.NoError(t, q.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestInMemoryQueueWithoutSubscribers(t *testing.T) {
	q := queue.NewInMemoryQueue(nil)
	defer q.Close()
	assert.Error(t, q.Publish(context.Background(), "nobody", job{}))
}
