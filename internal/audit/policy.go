package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/obs"
)

const defaultPolicyTimeout = 2 * time.Second

// BestEffortPolicy writes widget failures to the audit log without blocking
// the caller. Each failure is written at most once and a failed write is only
// counted and logged.
type BestEffortPolicy struct {
	Service *Service
	Timeout time.Duration
	Logger  *zerolog.Logger

	wg sync.WaitGroup
}

// NewBestEffortPolicy constructs a BestEffortPolicy.
func NewBestEffortPolicy(svc *Service, timeout time.Duration, logger *zerolog.Logger) *BestEffortPolicy {
	return &BestEffortPolicy{Service: svc, Timeout: timeout, Logger: logger}
}

// OnError schedules an audit entry for a failed widget and returns immediately.
func (p *BestEffortPolicy) OnError(ctx context.Context, widget string, err error) {
	if p == nil || p.Service == nil || err == nil {
		return
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultPolicyTimeout
	}
	entry := Entry{
		Actor:      actorFromContext(ctx),
		Action:     "widget.error",
		EntityType: "admin_widget",
		EntityID:   widget,
		Details: map[string]any{
			"widget": widget,
			"error":  err.Error(),
		},
	}
	detached := context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		writeCtx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()
		if werr := p.Service.Record(writeCtx, entry); werr != nil {
			obs.ObserveAuditDrop()
			if p.Logger != nil {
				p.Logger.Debug().Err(werr).Str("widget", widget).Msg("audit write dropped")
			}
		}
	}()
}

// Wait blocks until scheduled writes have finished. Used on shutdown and in tests.
func (p *BestEffortPolicy) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}

func actorFromContext(ctx context.Context) Actor {
	if userID, ok := common.UserID(ctx); ok && userID != "" {
		return Actor{Kind: ActorKindUser, UserID: &userID}
	}
	return Actor{Kind: ActorKindSystem}
}
