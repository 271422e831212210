package nlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/benturneroffice365-web/jetdb/internal/observability"
)

// Gateway drives a question through introspection, synthesis, validation and
// execution in strict order. One call handles one question; nothing is cached
// or shared between calls.
type Gateway struct {
	introspector Introspector
	synthesizer  Synthesizer
	validate     func(CandidateQuery) ValidationVerdict
	executor     Executor
	logger       *slog.Logger
}

func NewGateway(introspector Introspector, synthesizer Synthesizer, executor Executor, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		introspector: introspector,
		synthesizer:  synthesizer,
		validate:     Validate,
		executor:     executor,
		logger:       logger,
	}
}

// Answer is the terminal success state: the synthesized SQL alongside its
// bounded result.
type Answer struct {
	SQLQuery string
	Result
}

func (g *Gateway) Answer(ctx context.Context, locator, question string) (Answer, error) {
	traceID := observability.TraceIDFromContext(ctx)
	log := g.logger.With("trace_id", traceID, "dataset", locator)

	if g.synthesizer == nil {
		err := SynthesisUnavailable("language model is not configured", nil)
		g.finish(err.Kind)
		return Answer{}, err
	}

	schema, err := g.introspector.Inspect(ctx, locator)
	if err != nil {
		wrapped := asKind(err, SchemaUnavailable(err))
		log.Warn("schema introspection failed", "error", err)
		g.finish(wrapped.Kind)
		return Answer{}, wrapped
	}
	log.Debug("schema fetched", "columns", len(schema.Columns), "sample_rows", schema.RowCountSampled)

	synthStart := time.Now()
	candidate, err := g.synthesizer.Synthesize(ctx, question, schema)
	observability.ObserveSynthesisLatency(time.Since(synthStart))
	if err != nil {
		wrapped := asKind(err, SynthesisUnavailable("synthesis failed", err))
		log.Warn("sql synthesis failed", "error", err)
		g.finish(wrapped.Kind)
		return Answer{}, wrapped
	}
	log.Debug("sql synthesized", "sql", candidate.RawText)

	verdict := g.validate(candidate)
	if !verdict.Accepted {
		log.Info("candidate rejected", "reason", verdict.Reason, "sql", candidate.RawText)
		g.finish(KindRejectedByValidator)
		return Answer{}, RejectedByValidator(verdict.Reason)
	}

	result, err := g.executor.Execute(ctx, candidate, locator)
	if err != nil {
		wrapped := asKind(err, ExecutionFailed(err))
		log.Warn("query execution failed", "error", err, "sql", candidate.RawText)
		g.finish(wrapped.Kind)
		return Answer{}, wrapped
	}

	observability.ObserveNLQResult(result.RowCountReturned, result.Truncated)
	g.finish("")
	log.Info("question answered",
		"rows", result.RowCountReturned,
		"truncated", result.Truncated,
		"execution_ms", result.ExecutionTimeMs,
	)
	return Answer{SQLQuery: candidate.RawText, Result: result}, nil
}

func (g *Gateway) finish(kind FailureKind) {
	outcome := "ok"
	if kind != "" {
		outcome = string(kind)
	}
	observability.ObserveNLQOutcome(outcome)
}

// asKind keeps an already-classified pipeline error as is and falls back to
// the stage default for anything else.
func asKind(err error, fallback *Error) *Error {
	if kinded, ok := err.(*Error); ok {
		return kinded
	}
	return fallback
}
