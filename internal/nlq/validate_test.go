package nlq

import (
	"strings"
	"testing"
)

func TestValidateAcceptsPlainSelect(t *testing.T) {
	verdict := Validate(CandidateQuery{RawText: "SELECT region, SUM(revenue) FROM data GROUP BY region"})
	if !verdict.Accepted {
		t.Fatalf("expected accept, got reason %q", verdict.Reason)
	}
}

func TestValidateAcceptsKeywordLikeColumnNames(t *testing.T) {
	verdict := Validate(CandidateQuery{RawText: "SELECT * FROM data WHERE dropped_flag = 1"})
	if !verdict.Accepted {
		t.Fatalf("dropped_flag must not match DROP, got reason %q", verdict.Reason)
	}
}

func TestValidateCaseFoldsLeadingToken(t *testing.T) {
	verdict := Validate(CandidateQuery{RawText: "  select 1  "})
	if !verdict.Accepted {
		t.Fatalf("lowercase select must pass, got reason %q", verdict.Reason)
	}
}

func TestValidateRejectsNonSelect(t *testing.T) {
	for _, raw := range []string{"", "   ", "DROP TABLE data", "WITH t AS (SELECT 1) SELECT * FROM t", "EXPLAIN SELECT 1"} {
		verdict := Validate(CandidateQuery{RawText: raw})
		if verdict.Accepted {
			t.Fatalf("expected reject for %q", raw)
		}
		if verdict.Reason != "only SELECT queries are allowed" {
			t.Fatalf("unexpected reason %q for %q", verdict.Reason, raw)
		}
	}
}

func TestValidateRejectsBlockedKeywordAnywhere(t *testing.T) {
	verdict := Validate(CandidateQuery{RawText: "SELECT * FROM data; DELETE FROM data"})
	if verdict.Accepted {
		t.Fatal("expected reject")
	}
	if !strings.Contains(verdict.Reason, "DELETE") {
		t.Fatalf("reason must name the keyword, got %q", verdict.Reason)
	}
}

func TestValidateRejectsLowercaseBlockedKeyword(t *testing.T) {
	verdict := Validate(CandidateQuery{RawText: "SELECT 1; drop table data"})
	if verdict.Accepted {
		t.Fatal("expected reject")
	}
	if !strings.Contains(verdict.Reason, "DROP") {
		t.Fatalf("reason must upper-case the keyword, got %q", verdict.Reason)
	}
}
