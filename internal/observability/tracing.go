package observability

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// SlowQueryThreshold is the duration above which statements are logged
var SlowQueryThreshold = 250 * time.Millisecond

// StartServiceSpan starts an internal span named service.operation
func StartServiceSpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("linkshelf.component", service),
		attribute.String("linkshelf.operation", operation),
	)
	return otel.Tracer(instrumentationName).Start(ctx, service+"."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// TraceDB wraps sql.DB with a client span and metrics per statement. It
// satisfies the repository DBTX interface; transactions bypass it.
type TraceDB struct {
	db       *sql.DB
	system   string
	duration metric.Float64Histogram
	failures metric.Int64Counter
	log      *Logger
}

// NewTraceDB creates a traced database wrapper. system is the db.system
// attribute value, e.g. "sqlite" or "postgresql".
func NewTraceDB(db *sql.DB, system string) (*TraceDB, error) {
	meter := otel.Meter(instrumentationName)

	duration, err := meter.Float64Histogram("linkshelf.db.statement.duration",
		metric.WithDescription("Statement duration by table and verb"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("linkshelf.db.statement.errors",
		metric.WithDescription("Failed statements by table and verb"),
		metric.WithUnit("{statement}"))
	if err != nil {
		return nil, err
	}

	return &TraceDB{
		db:       db,
		system:   system,
		duration: duration,
		failures: failures,
		log:      GetLogger().Component("db"),
	}, nil
}

// QueryContext runs a query inside a client span
func (t *TraceDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	ctx, done := t.begin(ctx, query)
	rows, err := t.db.QueryContext(ctx, query, args...)
	done(err)
	return rows, err
}

// ExecContext runs a statement inside a client span
func (t *TraceDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, done := t.begin(ctx, query)
	result, err := t.db.ExecContext(ctx, query, args...)
	if err == nil {
		if n, raErr := result.RowsAffected(); raErr == nil {
			trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("db.rows_affected", n))
		}
	}
	done(err)
	return result, err
}

// QueryRowContext runs a single-row query. The span ends before the row is
// scanned; sql.Row gives no hook for it.
func (t *TraceDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	ctx, done := t.begin(ctx, query)
	row := t.db.QueryRowContext(ctx, query, args...)
	done(row.Err())
	return row
}

// begin opens the span and returns the function that closes it
func (t *TraceDB) begin(ctx context.Context, query string) (context.Context, func(error)) {
	verb, table := describeStatement(query)
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, verb+" "+table,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", t.system),
			attribute.String("db.operation", verb),
			attribute.String("db.sql.table", table),
			attribute.String("db.statement", truncateQuery(query)),
		),
	)
	start := time.Now()

	return ctx, func(err error) {
		elapsed := time.Since(start)
		attrs := metric.WithAttributes(
			attribute.String("db.system", t.system),
			attribute.String("db.operation", verb),
			attribute.String("db.sql.table", table),
		)
		t.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)

		if err != nil && err != sql.ErrNoRows {
			t.failures.Add(ctx, 1, attrs)
			RecordError(span, err)
		}
		if elapsed > SlowQueryThreshold {
			t.log.WithContext(ctx).WithField("table", table).WithField("operation", verb).
				WithField("duration_ms", elapsed.Milliseconds()).Warn("Slow query")
		}
		span.End()
	}
}

// describeStatement returns the SQL verb and the first table it touches
func describeStatement(query string) (string, string) {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "UNKNOWN", "unknown"
	}
	verb := strings.ToUpper(fields[0])

	marker := ""
	switch verb {
	case "SELECT", "DELETE":
		marker = "FROM"
	case "INSERT":
		marker = "INTO"
	case "UPDATE":
		return verb, tableName(safeField(fields, 1))
	default:
		return verb, "unknown"
	}

	for i, f := range fields {
		if strings.EqualFold(f, marker) {
			return verb, tableName(safeField(fields, i+1))
		}
	}
	return verb, "unknown"
}

// tableName strips a column list glued to the table and any quoting
func tableName(tok string) string {
	before, _, _ := strings.Cut(tok, "(")
	if before = strings.Trim(before, `"`); before == "" {
		return "unknown"
	}
	return before
}

func safeField(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return "unknown"
}

func truncateQuery(query string) string {
	if len(query) > 500 {
		return query[:500] + "..."
	}
	return query
}
