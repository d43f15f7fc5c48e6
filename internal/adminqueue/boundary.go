package adminqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/obs"
)

// ErrorPolicy receives widget failures caught by a Boundary.
type ErrorPolicy interface {
	OnError(ctx context.Context, widget string, err error)
}

// NopPolicy discards widget failures.
type NopPolicy struct{}

// OnError implements ErrorPolicy.
func (NopPolicy) OnError(context.Context, string, error) {}

// PolicyFunc adapts a function to ErrorPolicy.
type PolicyFunc func(ctx context.Context, widget string, err error)

// OnError implements ErrorPolicy.
func (f PolicyFunc) OnError(ctx context.Context, widget string, err error) { f(ctx, widget, err) }

// WidgetError is the user-facing failure of a single widget. The client may
// retry the widget; there is no server-side retry.
type WidgetError struct {
	Widget    string `json:"widget"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Err       error  `json:"-"`
}

func (e *WidgetError) Error() string {
	return fmt.Sprintf("widget %s: %s", e.Widget, e.Message)
}

func (e *WidgetError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panicking widget.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Boundary isolates a widget load: panics and errors are converted into a
// WidgetError and reported to Policy, never propagated to sibling widgets.
type Boundary struct {
	Policy  ErrorPolicy
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// Run executes load for widget.
func (b Boundary) Run(ctx context.Context, widget string, load func(context.Context) (any, error)) (result any, werr *WidgetError) {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		var err error
		if r := recover(); r != nil {
			err = PanicError{Value: r}
			result = nil
		} else if werr != nil {
			err = werr.Err
		}
		if err == nil {
			obs.ObserveWidget(widget, "ok", time.Since(start))
			return
		}
		obs.ObserveWidget(widget, "error", time.Since(start))
		if b.Logger != nil {
			b.Logger.Error().Err(err).Str("widget", widget).Msg("widget failed")
		}
		policy := b.Policy
		if policy == nil {
			policy = NopPolicy{}
		}
		policy.OnError(ctx, widget, err)
		werr = &WidgetError{Widget: widget, Message: "failed to load " + widget, Retryable: true, Err: err}
	}()

	res, err := load(ctx)
	if err != nil {
		return nil, &WidgetError{Err: err}
	}
	return res, nil
}
