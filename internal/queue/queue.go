package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/noah-isme/backend-telco/internal/resilience"
)

// DefaultMaxAttempts applies when neither the task nor the enqueuer sets one.
const DefaultMaxAttempts = 10

// Task represents a job to be processed asynchronously.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Delay          time.Duration
	// Attempt is the 1-based delivery count seen by handlers. On enqueue it
	// seeds the counter of a replayed task.
	Attempt int
}

// Enqueuer publishes tasks to Redis backed queues.
type Enqueuer struct {
	R           redis.Cmdable
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
}

// Enqueue inserts the task into the queue. If an idempotency key is supplied the
// task is only enqueued once within the configured deduplication window.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	kind := sanitizeKind(t.Kind)
	if kind == "" {
		return errors.New("queue: task kind is required")
	}
	msg := taskMessage{
		Kind:        kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		Attempt:     max(t.Attempt, 0),
		MaxAttempts: t.MaxAttempts,
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = e.MaxAttempts
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = DefaultMaxAttempts
	}
	msg.AvailableAt = time.Now().Add(t.Delay).UnixNano()

	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ok, err := e.R.SetNX(ctx, keys{e.Prefix}.dedup(kind, msg.Key), "1", ttl).Result()
		if err != nil {
			return fmt.Errorf("queue: dedup %s: %w", kind, err)
		}
		if !ok {
			return nil
		}
	}

	raw, err := json.Marshal(msg)
	if err == nil {
		err = e.R.ZAdd(ctx, keys{e.Prefix}.queue(kind), redis.Z{Score: float64(msg.AvailableAt), Member: raw}).Err()
	}
	if err != nil && msg.Key != "" {
		// free the key so a retry of the caller is not swallowed as a duplicate
		_ = e.R.Del(ctx, keys{e.Prefix}.dedup(kind, msg.Key)).Err()
	}
	return err
}

// Requeue releases the task's dedup key before enqueuing it, so an operator
// replay goes through even inside the dedup window.
func (e Enqueuer) Requeue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	if kind := sanitizeKind(t.Kind); kind != "" && t.IdempotencyKey != "" {
		if err := e.R.Del(ctx, keys{e.Prefix}.dedup(kind, t.IdempotencyKey)).Err(); err != nil {
			return fmt.Errorf("queue: release dedup %s: %w", kind, err)
		}
	}
	return e.Enqueue(ctx, t)
}

func sanitizeKind(kind string) string {
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		if c >= 'a' && c <= 'z' {
			continue
		}
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '-' || c == '_' || c == ':' {
			continue
		}
		return ""
	}
	return kind
}

// Worker consumes tasks for a specific kind.
type Worker struct {
	R                 redis.Cmdable
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	// SoftDeadline bounds a single handler call. It is capped at the
	// visibility timeout so a slow job is abandoned before it is redelivered.
	SoftDeadline time.Duration
	Handler      func(context.Context, Task) error
	RetryBase    time.Duration
	RetryJitter  float64
	// Store receives dead-lettered tasks. Without one they are pushed to a
	// Redis list.
	Store  Store
	Logger *zerolog.Logger
}

func (w Worker) logger() *zerolog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// claimScript moves the earliest due task from the ready set into the
// processing set, scored by its visibility deadline. Tasks not yet due stay
// where they are.
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #due == 0 then
  return false
end
redis.call('ZREM', KEYS[1], due[1])
redis.call('ZADD', KEYS[2], ARGV[2], due[1])
return due[1]
`)

const idlePoll = 100 * time.Millisecond

// Run processes tasks until ctx is cancelled, then waits for in-flight
// handlers. A task is claimed only once a handler slot is free; claimed tasks
// sit in the processing set until acked, retried or their visibility expires.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	kind := sanitizeKind(w.Kind)
	if kind == "" {
		return errors.New("queue: worker kind is required")
	}
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	deadline := w.SoftDeadline
	if deadline <= 0 || deadline > visibility {
		deadline = visibility
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}
	k := keys{w.Prefix}
	queueKey, processingKey := k.queue(kind), k.processing(kind)

	slots := make(chan struct{}, max(w.Concurrency, 1))
	var wg conc.WaitGroup
	defer wg.Wait()

	requeueTicker := time.NewTicker(time.Second)
	defer requeueTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case slots <- struct{}{}:
		}
		select {
		case <-requeueTicker.C:
			if err := w.requeueExpired(ctx, processingKey, queueKey); err != nil {
				<-slots
				return err
			}
		default:
		}

		now := time.Now()
		raw, err := claimScript.Run(ctx, w.R, []string{queueKey, processingKey},
			now.UnixNano(), now.Add(visibility).UnixNano()).Text()
		if err != nil {
			<-slots
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, redis.Nil):
				sleep(ctx, idlePoll)
				continue
			}
			return fmt.Errorf("queue: claim %s: %w", kind, err)
		}
		msg, err := decodeMessage(raw)
		if err != nil {
			<-slots
			_ = w.R.ZRem(ctx, processingKey, raw).Err()
			w.logger().Warn().Err(err).Str("kind", kind).Msg("queue: dropping undecodable task")
			continue
		}

		observeClaimed(kind, msg.AvailableAt, now)

		wg.Go(func() {
			defer func() { <-slots }()
			msg.Attempt++
			started := time.Now()
			err := w.handle(ctx, deadline, Task{Kind: kind, Payload: msg.Payload, IdempotencyKey: msg.Key, MaxAttempts: msg.MaxAttempts, Attempt: msg.Attempt})
			observeHandled(kind, started)
			// bookkeeping must land even when the worker is shutting down
			bg := context.WithoutCancel(ctx)
			if err != nil {
				w.handleFailure(bg, queueKey, processingKey, raw, msg, retryBase, err)
				return
			}
			w.ack(bg, processingKey, raw, msg)
		})
	}
}

// handle runs the handler under its soft deadline. A panic counts as a
// failed attempt.
func (w Worker) handle(ctx context.Context, deadline time.Duration, t Task) (err error) {
	jobCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: handler panic: %v", r)
		}
	}()
	return w.Handler(jobCtx, t)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w Worker) handleFailure(ctx context.Context, queueKey, processingKey, raw string, msg taskMessage, base time.Duration, cause error) {
	_ = w.R.ZRem(ctx, processingKey, raw).Err()
	log := w.logger().With().Str("kind", msg.Kind).Str("key", msg.Key).Int("attempt", msg.Attempt).Logger()
	if msg.MaxAttempts > 0 && msg.Attempt >= msg.MaxAttempts {
		if err := w.deadLetter(ctx, msg, cause); err != nil {
			log.Error().Err(err).Msg("queue: dead letter failed")
		}
		observeProcessed(msg.Kind, "dead")
		log.Warn().Err(cause).Msg("queue: task moved to dlq")
		return
	}
	delay := resilience.Backoff(base, msg.Attempt, w.RetryJitter)
	msg.AvailableAt = time.Now().Add(delay).UnixNano()
	rawBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, queueKey, redis.Z{Score: float64(msg.AvailableAt), Member: string(rawBytes)}).Err()
	observeProcessed(msg.Kind, "retry")
	log.Debug().Err(cause).Dur("delay", delay).Msg("queue: task scheduled for retry")
}

func (w Worker) deadLetter(ctx context.Context, msg taskMessage, cause error) error {
	k := keys{w.Prefix}
	defer func() {
		if msg.Key != "" {
			_ = w.R.Del(ctx, k.dedup(msg.Kind, msg.Key)).Err()
		}
	}()
	rawBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if w.Store == nil {
		return w.R.LPush(ctx, k.dlq(msg.Kind), rawBytes).Err()
	}
	var lastErr *string
	if cause != nil {
		text := cause.Error()
		lastErr = &text
	}
	_, err = w.Store.InsertQueueDlq(ctx, DLQEntry{
		Kind:           msg.Kind,
		IdempotencyKey: msg.Key,
		Payload:        rawBytes,
		Attempts:       msg.Attempt,
		LastError:      lastErr,
	})
	if err != nil {
		return err
	}
	if count, err := w.Store.CountQueueDlq(ctx, msg.Kind); err == nil {
		QueueDLQSize.WithLabelValues(queueLabel(msg.Kind)).Set(float64(count))
	}
	return nil
}

func (w Worker) ack(ctx context.Context, processingKey, raw string, msg taskMessage) {
	_ = w.R.ZRem(ctx, processingKey, raw).Err()
	if msg.Key != "" {
		_ = w.R.Del(ctx, keys{w.Prefix}.dedup(msg.Kind, msg.Key)).Err()
	}
	observeProcessed(msg.Kind, "success")
}

func (w Worker) requeueExpired(ctx context.Context, processingKey, queueKey string) error {
	now := float64(time.Now().UnixNano())
	due, err := w.R.ZRangeByScore(ctx, processingKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	for _, raw := range due {
		msg, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		if removed, err := w.R.ZRem(ctx, processingKey, raw).Result(); err != nil || removed == 0 {
			// finished or reclaimed meanwhile
			continue
		}
		msg.Attempt++
		msg.AvailableAt = time.Now().UnixNano()
		encoded, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, queueKey, redis.Z{Score: float64(msg.AvailableAt), Member: encoded}).Err()
	}
	return nil
}

// keys derives the Redis key layout for a prefix.
type keys struct{ prefix string }

func (k keys) base() string {
	if k.prefix == "" {
		return "queue"
	}
	return k.prefix
}

func (k keys) queue(kind string) string      { return k.base() + ":queue:" + kind }
func (k keys) processing(kind string) string { return k.base() + ":" + kind + ":processing" }
func (k keys) dlq(kind string) string        { return k.base() + ":" + kind + ":dlq" }
func (k keys) dedup(kind, key string) string { return k.base() + ":dedup:" + kind + ":" + key }

func decodeMessage(raw string) (taskMessage, error) {
	var msg taskMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return taskMessage{}, err
	}
	return msg, nil
}

type taskMessage struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	AvailableAt int64  `json:"available_at"`
}
