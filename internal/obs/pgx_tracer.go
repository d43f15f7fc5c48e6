package obs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

// PGXTracer is a pgx.QueryTracer that opens a client span per statement and,
// when Slow is set, logs statements that take longer.
type PGXTracer struct {
	Slow   time.Duration
	Logger *zerolog.Logger
}

type queryKey struct{}

type queryTrace struct {
	span      trace.Span
	started   time.Time
	statement string
}

// TraceQueryStart implements pgx.QueryTracer.
func (t PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	statement := truncateSQL(data.SQL)
	op := "query"
	if fields := strings.Fields(statement); len(fields) > 0 {
		op = strings.ToLower(fields[0])
	}
	ctx, span := otel.Tracer("telco.store").Start(ctx, "pg "+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", statement),
	)
	return context.WithValue(ctx, queryKey{}, queryTrace{span: span, started: time.Now(), statement: statement})
}

// TraceQueryEnd implements pgx.QueryTracer. pgx.ErrNoRows is an answer, not a
// failure, and leaves the span status alone.
func (t PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	q, ok := ctx.Value(queryKey{}).(queryTrace)
	if !ok {
		return
	}
	defer q.span.End()
	q.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		q.span.RecordError(data.Err)
		q.span.SetStatus(codes.Error, data.Err.Error())
	}
	if elapsed := time.Since(q.started); t.Slow > 0 && elapsed >= t.Slow && t.Logger != nil {
		evt := t.Logger.Warn().Dur("elapsed", elapsed).Str("statement", q.statement)
		if sc := q.span.SpanContext(); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String())
		}
		evt.Msg("slow query")
	}
}

func truncateSQL(sql string) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) > maxStatementLen {
		return sql[:maxStatementLen] + "..."
	}
	return sql
}
