package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/lock"
	"github.com/noah-isme/backend-telco/internal/notify"
	"github.com/noah-isme/backend-telco/internal/queue"
	"github.com/noah-isme/backend-telco/internal/store"
	"github.com/noah-isme/backend-telco/internal/store/storetest"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, t queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, t)
	return nil
}

func seeded() *storetest.Memory {
	mem := storetest.New()
	mem.Profiles = []store.Profile{
		{ID: uuid.New(), Email: "a@example.com", MarketingOptIn: true},
		{ID: uuid.New(), Email: "b@example.com", MarketingOptIn: true},
		{ID: uuid.New(), Email: "c@example.com", MarketingOptIn: false},
	}
	return mem
}

func TestCreateUsesTemplateDefaults(t *testing.T) {
	mem := seeded()
	tplID := uuid.New()
	mem.Templates = []store.EmailTemplate{{ID: tplID, Name: "spring", Subject: "Spring deals", Body: "<p>Save now</p>"}}
	svc := &Service{Store: mem, Profiles: mem}

	c, err := svc.Create(context.Background(), CreateRequest{Name: "Spring", TemplateID: &tplID})
	require.NoError(t, err)
	require.Equal(t, "Spring deals", c.Subject)
	require.Equal(t, "<p>Save now</p>", c.Body)
	require.Equal(t, store.CampaignDraft, c.Status)

	c, err = svc.Create(context.Background(), CreateRequest{Name: "Spring", TemplateID: &tplID, Subject: "Custom"})
	require.NoError(t, err)
	require.Equal(t, "Custom", c.Subject)
}

func TestCreateValidation(t *testing.T) {
	mem := seeded()
	svc := &Service{Store: mem, Profiles: mem}
	_, err := svc.Create(context.Background(), CreateRequest{Name: "x"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	require.Contains(t, details, "subject")
	require.Contains(t, details, "body")

	missing := uuid.New()
	_, err = svc.Create(context.Background(), CreateRequest{Name: "x", TemplateID: &missing})
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
	require.Empty(t, mem.Campaigns)
}

func TestSendFansOutToOptedIn(t *testing.T) {
	mem := seeded()
	q := &recordingQueue{}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := &Service{Store: mem, Profiles: mem, Queue: q, Now: func() time.Time { return now }}
	c, err := svc.Create(context.Background(), CreateRequest{Name: "n", Subject: "s", Body: "b"})
	require.NoError(t, err)

	res, err := svc.Send(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, 2, res.Recipients)
	require.Equal(t, 2, res.Enqueued)
	require.Len(t, mem.Recipients, 2)
	require.Len(t, q.tasks, 2)
	for _, task := range q.tasks {
		require.Equal(t, TaskKind, task.Kind)
		var p SendPayload
		require.NoError(t, json.Unmarshal(task.Payload, &p))
		require.Equal(t, c.ID, p.CampaignID)
		require.Equal(t, p.RecipientID.String(), task.IdempotencyKey)
	}
	require.Equal(t, store.CampaignQueued, mem.Campaigns[0].Status)
	require.Nil(t, mem.Campaigns[0].SentAt, "nothing has been delivered yet")

	_, err = svc.Send(context.Background(), c.ID)
	require.ErrorIs(t, err, ErrAlreadySent)

	delivered := now.Add(time.Minute)
	d := Deliverer{Store: mem, Email: &common.InMemoryEmail{}, Now: func() time.Time { return delivered }}
	require.NoError(t, d.Handle(context.Background(), q.tasks[0]))
	require.Equal(t, store.CampaignQueued, mem.Campaigns[0].Status)
	require.NoError(t, d.Handle(context.Background(), q.tasks[1]))
	require.Equal(t, store.CampaignSent, mem.Campaigns[0].Status)
	require.Equal(t, delivered, *mem.Campaigns[0].SentAt)
}

func TestSendWithNoRecipientsCompletes(t *testing.T) {
	mem := storetest.New()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := &Service{Store: mem, Profiles: mem, Queue: &recordingQueue{}, Now: func() time.Time { return now }}
	c, err := svc.Create(context.Background(), CreateRequest{Name: "n", Subject: "s", Body: "b"})
	require.NoError(t, err)

	res, err := svc.Send(context.Background(), c.ID)
	require.NoError(t, err)
	require.Zero(t, res.Enqueued)
	require.Equal(t, store.CampaignSent, mem.Campaigns[0].Status)
	require.Equal(t, now, *mem.Campaigns[0].SentAt)
}

func TestSendInterruptedCanResume(t *testing.T) {
	mem := seeded()
	q := &recordingQueue{err: errors.New("redis down")}
	svc := &Service{Store: mem, Profiles: mem, Queue: q}
	c, err := svc.Create(context.Background(), CreateRequest{Name: "n", Subject: "s", Body: "b"})
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), c.ID)
	require.Error(t, err)
	require.Equal(t, store.CampaignSending, mem.Campaigns[0].Status)

	q.err = nil
	res, err := svc.Send(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, 2, res.Enqueued)
	require.Len(t, mem.Recipients, 2)
}

func TestSendUnderLockIsNotRepeated(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mem := seeded()
	q := &recordingQueue{}
	svc := &Service{Store: mem, Profiles: mem, Queue: q, Lock: lock.Locker{R: rdb, RetryBackoff: 5 * time.Millisecond}}
	c, err := svc.Create(context.Background(), CreateRequest{Name: "n", Subject: "s", Body: "b"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Send(context.Background(), c.ID)
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrAlreadySent)
			failed++
		}
	}
	require.Equal(t, 1, failed)
	require.Len(t, q.tasks, 2)
	require.False(t, mr.Exists("telco:lock:campaign:"+c.ID.String()))
}

func newRecipient(mem *storetest.Memory) (store.Campaign, store.CampaignRecipient) {
	c := store.Campaign{ID: uuid.New(), Name: "n", Subject: "Hello", Body: "Body", Status: store.CampaignQueued}
	r := store.CampaignRecipient{ID: uuid.New(), CampaignID: c.ID, UserID: uuid.New(), Email: "a@example.com", Status: store.RecipientPending}
	mem.Campaigns = append(mem.Campaigns, c)
	mem.Recipients = append(mem.Recipients, r)
	return c, r
}

func task(t *testing.T, c store.Campaign, r store.CampaignRecipient, attempt, maxAttempts int) queue.Task {
	t.Helper()
	payload, err := json.Marshal(SendPayload{CampaignID: c.ID, RecipientID: r.ID})
	require.NoError(t, err)
	return queue.Task{Kind: TaskKind, Payload: payload, Attempt: attempt, MaxAttempts: maxAttempts}
}

func TestDelivererSendsAndMarks(t *testing.T) {
	mem := storetest.New()
	c, r := newRecipient(mem)
	mail := &common.InMemoryEmail{}
	d := Deliverer{Store: mem, Email: mail}

	require.NoError(t, d.Handle(context.Background(), task(t, c, r, 1, 3)))
	sent := mail.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, common.EmailCampaign, sent[0].Type)
	require.Equal(t, "Hello", sent[0].Data["subject"])
	require.Equal(t, store.RecipientSent, mem.Recipients[0].Status)
	require.Equal(t, store.CampaignSent, mem.Campaigns[0].Status)

	// redelivery after success is a no-op
	require.NoError(t, d.Handle(context.Background(), task(t, c, r, 2, 3)))
	require.Len(t, mail.Sent(), 1)
}

func TestDelivererRetriesThenMarksFailed(t *testing.T) {
	mem := storetest.New()
	c, r := newRecipient(mem)
	mail := &common.InMemoryEmail{Err: errors.New("function down")}
	d := Deliverer{Store: mem, Email: mail}

	require.Error(t, d.Handle(context.Background(), task(t, c, r, 1, 3)))
	require.Equal(t, store.RecipientPending, mem.Recipients[0].Status)
	require.Equal(t, store.CampaignQueued, mem.Campaigns[0].Status)

	require.Error(t, d.Handle(context.Background(), task(t, c, r, 3, 3)))
	require.Equal(t, store.RecipientFailed, mem.Recipients[0].Status)
	require.Equal(t, store.CampaignSent, mem.Campaigns[0].Status, "no recipient left pending")
	require.NotNil(t, mem.Recipients[0].Error)
	require.Equal(t, "function down", *mem.Recipients[0].Error)
}

func TestDelivererGuardReleasesOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mem := storetest.New()
	c, r := newRecipient(mem)
	mail := &common.InMemoryEmail{Err: errors.New("down")}
	guard := notify.SendGuard{Client: rdb, Prefix: "test", TTL: time.Hour}
	d := Deliverer{Store: mem, Email: mail, Guard: guard}

	require.Error(t, d.Handle(context.Background(), task(t, c, r, 1, 3)))
	require.False(t, mr.Exists("test:sent:"+r.ID.String()))

	mail.Err = nil
	require.NoError(t, d.Handle(context.Background(), task(t, c, r, 2, 3)))
	require.True(t, mr.Exists("test:sent:"+r.ID.String()))
	require.Len(t, mail.Sent(), 2)
}

func TestDelivererHeldClaimMarksSentWithoutEmail(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mem := storetest.New()
	c, r := newRecipient(mem)
	mail := &common.InMemoryEmail{}
	guard := notify.SendGuard{Client: rdb, Prefix: "test", TTL: time.Hour}
	ok, err := guard.Acquire(context.Background(), r.ID.String())
	require.NoError(t, err)
	require.True(t, ok)

	d := Deliverer{Store: mem, Email: mail, Guard: guard}
	require.NoError(t, d.Handle(context.Background(), task(t, c, r, 2, 3)))
	require.Empty(t, mail.Sent())
	require.Equal(t, store.RecipientSent, mem.Recipients[0].Status)
}

func TestDelivererDropsMalformedPayload(t *testing.T) {
	d := Deliverer{Store: storetest.New(), Email: &common.InMemoryEmail{}}
	require.NoError(t, d.Handle(context.Background(), queue.Task{Kind: TaskKind, Payload: []byte("{")}))
}

func TestSendThroughRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mem := seeded()
	svc := &Service{Store: mem, Profiles: mem, Queue: queue.Enqueuer{R: rdb, Prefix: "test"}}
	c, err := svc.Create(context.Background(), CreateRequest{Name: "n", Subject: "s", Body: "b"})
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), c.ID)
	require.NoError(t, err)

	mail := &common.InMemoryEmail{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := queue.Worker{
		R:                 rdb,
		Prefix:            "test",
		Kind:              TaskKind,
		Concurrency:       2,
		VisibilityTimeout: time.Second,
		RetryBase:         10 * time.Millisecond,
		Handler:           Deliverer{Store: mem, Email: mail}.Handle,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	require.Eventually(t, func() bool { return len(mail.Sent()) == 2 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	<-done
	for _, r := range mem.Recipients {
		require.Equal(t, store.RecipientSent, r.Status)
	}
}

func TestHandlers(t *testing.T) {
	mem := seeded()
	q := &recordingQueue{}
	h := &Handler{Svc: &Service{Store: mem, Profiles: mem, Queue: q}}
	r := chi.NewRouter()
	r.Post("/admin/campaigns", h.Create)
	r.Get("/admin/campaigns", h.List)
	r.Post("/admin/campaigns/{id}/send", h.Send)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/campaigns", strings.NewReader(`{"name":"Spring","subject":"Deals","body":"Hi"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := mem.Campaigns[0].ID.String()

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/campaigns", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Spring")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/campaigns/"+id+"/send", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"enqueued":2`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/campaigns/"+id+"/send", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}
