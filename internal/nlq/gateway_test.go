package nlq

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

type fakeIntrospector struct {
	schema SchemaSnapshot
	err    error
	calls  int
}

func (f *fakeIntrospector) Inspect(ctx context.Context, locator string) (SchemaSnapshot, error) {
	f.calls++
	return f.schema, f.err
}

type fakeSynthesizer struct {
	sql   string
	err   error
	calls int
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, question string, schema SchemaSnapshot) (CandidateQuery, error) {
	f.calls++
	return CandidateQuery{RawText: f.sql}, f.err
}

type fakeExecutor struct {
	result Result
	err    error
	calls  int
	lastQ  CandidateQuery
}

func (f *fakeExecutor) Execute(ctx context.Context, candidate CandidateQuery, locator string) (Result, error) {
	f.calls++
	f.lastQ = candidate
	return f.result, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestGatewayAnswersQuestion(t *testing.T) {
	intro := &fakeIntrospector{schema: testSchema()}
	synth := &fakeSynthesizer{sql: "SELECT region, SUM(revenue) AS total FROM data GROUP BY region ORDER BY total DESC LIMIT 3"}
	exec := &fakeExecutor{result: Result{
		Rows:             []map[string]any{{"region": "west", "total": 99.0}},
		ColumnOrder:      []string{"region", "total"},
		RowCountReturned: 1,
		ExecutionTimeMs:  1.2,
	}}
	gw := NewGateway(intro, synth, exec, testLogger())

	answer, err := gw.Answer(context.Background(), "alice/sales", "top regions by revenue")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer.SQLQuery != synth.sql {
		t.Fatalf("SQLQuery = %q", answer.SQLQuery)
	}
	if answer.RowCountReturned != 1 || answer.Truncated {
		t.Fatalf("unexpected result %+v", answer.Result)
	}
	if exec.lastQ.RawText != synth.sql {
		t.Fatalf("executor received %q", exec.lastQ.RawText)
	}
	if intro.calls != 1 || synth.calls != 1 || exec.calls != 1 {
		t.Fatalf("call counts intro=%d synth=%d exec=%d", intro.calls, synth.calls, exec.calls)
	}
}

func TestGatewaySchemaFailureStopsPipeline(t *testing.T) {
	intro := &fakeIntrospector{err: errors.New("view missing")}
	synth := &fakeSynthesizer{sql: "SELECT 1"}
	exec := &fakeExecutor{}
	gw := NewGateway(intro, synth, exec, testLogger())

	_, err := gw.Answer(context.Background(), "alice/sales", "anything")
	if kind, ok := KindOf(err); !ok || kind != KindSchemaUnavailable {
		t.Fatalf("kind = %v ok = %v", kind, ok)
	}
	if synth.calls != 0 || exec.calls != 0 {
		t.Fatalf("later stages ran: synth=%d exec=%d", synth.calls, exec.calls)
	}
}

func TestGatewaySynthesisFailureKeepsKind(t *testing.T) {
	intro := &fakeIntrospector{schema: testSchema()}
	synth := &fakeSynthesizer{err: SynthesisUnavailable("model down", nil)}
	exec := &fakeExecutor{}
	gw := NewGateway(intro, synth, exec, testLogger())

	_, err := gw.Answer(context.Background(), "alice/sales", "anything")
	if kind, ok := KindOf(err); !ok || kind != KindSynthesisUnavailable {
		t.Fatalf("kind = %v ok = %v", kind, ok)
	}
	if exec.calls != 0 {
		t.Fatalf("executor ran %d times", exec.calls)
	}
}

func TestGatewayRejectedCandidateNeverExecutes(t *testing.T) {
	intro := &fakeIntrospector{schema: testSchema()}
	synth := &fakeSynthesizer{sql: "DROP TABLE data"}
	exec := &fakeExecutor{}
	gw := NewGateway(intro, synth, exec, testLogger())

	_, err := gw.Answer(context.Background(), "alice/sales", "delete everything")
	if kind, ok := KindOf(err); !ok || kind != KindRejectedByValidator {
		t.Fatalf("kind = %v ok = %v", kind, ok)
	}
	if exec.calls != 0 {
		t.Fatalf("executor ran %d times", exec.calls)
	}
}

func TestGatewayTimeoutKindPropagates(t *testing.T) {
	intro := &fakeIntrospector{schema: testSchema()}
	synth := &fakeSynthesizer{sql: "SELECT * FROM data"}
	exec := &fakeExecutor{err: QueryTimeout(0)}
	gw := NewGateway(intro, synth, exec, testLogger())

	_, err := gw.Answer(context.Background(), "alice/sales", "everything")
	if kind, ok := KindOf(err); !ok || kind != KindQueryTimeout {
		t.Fatalf("kind = %v ok = %v", kind, ok)
	}
}

func TestGatewayWithoutSynthesizerFailsFast(t *testing.T) {
	intro := &fakeIntrospector{schema: testSchema()}
	exec := &fakeExecutor{}
	gw := NewGateway(intro, nil, exec, testLogger())

	_, err := gw.Answer(context.Background(), "alice/sales", "anything")
	if kind, ok := KindOf(err); !ok || kind != KindSynthesisUnavailable {
		t.Fatalf("kind = %v ok = %v", kind, ok)
	}
	if intro.calls != 0 {
		t.Fatalf("introspector ran %d times before config check", intro.calls)
	}
}
