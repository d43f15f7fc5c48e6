package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/queue"
)

func TestEnqueueDeduplicates(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	enq := queue.Enqueuer{R: client, Prefix: "dup", DedupTTL: time.Hour}
	task := queue.Task{Kind: "campaign-send", Payload: []byte("x"), IdempotencyKey: "same"}
	require.NoError(t, enq.Enqueue(ctx, task))
	require.NoError(t, enq.Enqueue(ctx, task))
	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "campaign-send", Payload: []byte("y"), IdempotencyKey: "other"}))

	depth, err := client.ZCard(ctx, "dup:queue:campaign-send").Result()
	require.NoError(t, err)
	require.EqualValues(t, 2, depth)
	require.Equal(t, time.Hour, mr.TTL("dup:dedup:campaign-send:same"))
}

func TestEnqueueValidatesKind(t *testing.T) {
	_, client := newRedis(t)
	enq := queue.Enqueuer{R: client}

	require.Error(t, enq.Enqueue(context.Background(), queue.Task{Kind: "Campaign Send"}))
	require.Error(t, enq.Enqueue(context.Background(), queue.Task{}))
	require.Error(t, queue.Enqueuer{}.Enqueue(context.Background(), queue.Task{Kind: "campaign-send"}))
}

func TestRequeueReleasesHeldKey(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("ops:dedup:campaign-send:r1", "1"))

	enq := queue.Enqueuer{R: client, Prefix: "ops"}
	task := queue.Task{Kind: "campaign-send", Payload: []byte("x"), IdempotencyKey: "r1"}
	require.NoError(t, enq.Enqueue(ctx, task))
	depth, err := client.ZCard(ctx, "ops:queue:campaign-send").Result()
	require.NoError(t, err)
	require.Zero(t, depth, "held key swallows a plain enqueue")

	require.NoError(t, enq.Requeue(ctx, task))
	depth, err = client.ZCard(ctx, "ops:queue:campaign-send").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, depth)
}

func TestWorkerDeliversAndReleasesKey(t *testing.T) {
	mr, client := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delivered := make(chan queue.Task, 1)
	done := startWorker(ctx, queue.Worker{
		R:                 client,
		Prefix:            "mail",
		Kind:              "campaign-send",
		VisibilityTimeout: time.Second,
		Handler: func(_ context.Context, task queue.Task) error {
			delivered <- task
			return nil
		},
	})

	enq := queue.Enqueuer{R: client, Prefix: "mail"}
	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "campaign-send", Payload: []byte(`{"recipientId":"r1"}`), IdempotencyKey: "r1"}))

	select {
	case task := <-delivered:
		require.JSONEq(t, `{"recipientId":"r1"}`, string(task.Payload))
		require.Equal(t, 1, task.Attempt)
		require.Equal(t, "r1", task.IdempotencyKey)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not delivered")
	}
	require.Eventually(t, func() bool {
		return !mr.Exists("mail:dedup:campaign-send:r1")
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestWorkerRetriesFailedDelivery(t *testing.T) {
	_, client := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 3)
	done := startWorker(ctx, queue.Worker{
		R:                 client,
		Prefix:            "retry",
		Kind:              "campaign-send",
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		RetryJitter:       0.1,
		Handler: func(_ context.Context, task queue.Task) error {
			attempts <- task.Attempt
			if task.Attempt == 1 {
				return errors.New("provider throttled")
			}
			return nil
		},
	})

	enq := queue.Enqueuer{R: client, Prefix: "retry"}
	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "campaign-send", Payload: []byte("x"), IdempotencyKey: "r2", MaxAttempts: 3}))

	for want := 1; want <= 2; want++ {
		select {
		case got := <-attempts:
			require.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("attempt %d never ran", want)
		}
	}

	cancel()
	<-done
}

func TestWorkerTreatsPanicAsFailure(t *testing.T) {
	_, client := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMemoryStore()
	done := startWorker(ctx, queue.Worker{
		R:                 client,
		Prefix:            "panic",
		Kind:              "campaign-send",
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		Store:             store,
		Handler: func(context.Context, queue.Task) error {
			panic("nil template")
		},
	})

	enq := queue.Enqueuer{R: client, Prefix: "panic"}
	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "campaign-send", Payload: []byte("x"), IdempotencyKey: "p1", MaxAttempts: 2}))

	require.Eventually(t, func() bool { return len(store.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	entry := store.all()[0]
	require.Equal(t, 2, entry.Attempts)
	require.Contains(t, *entry.LastError, "nil template")
}

func TestWorkerWaitsForDelayedTask(t *testing.T) {
	_, client := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan time.Time, 1)
	done := startWorker(ctx, queue.Worker{
		R:                 client,
		Prefix:            "delay",
		Kind:              "campaign-send",
		VisibilityTimeout: time.Second,
		Handler: func(context.Context, queue.Task) error {
			ran <- time.Now()
			return nil
		},
	})

	enq := queue.Enqueuer{R: client, Prefix: "delay"}
	queued := time.Now()
	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "campaign-send", Payload: []byte("x"), Delay: 300 * time.Millisecond}))

	// not due yet: the task stays in the ready set rather than being claimed
	time.Sleep(100 * time.Millisecond)
	processing, err := client.ZCard(ctx, "delay:campaign-send:processing").Result()
	require.NoError(t, err)
	require.Zero(t, processing)

	select {
	case at := <-ran:
		require.GreaterOrEqual(t, at.Sub(queued), 300*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task never ran")
	}
	cancel()
	<-done
}
