package nlq

import (
	"fmt"
	"regexp"
	"strings"
)

// blockedKeywordPattern matches whole SQL words only, so column names such as
// dropped_flag or updated_at never trip it. Matching is case-insensitive.
var blockedKeywordPattern = regexp.MustCompile(
	`(?i)\b(DROP|DELETE|INSERT|UPDATE|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|EXECUTE|PRAGMA|ATTACH|DETACH)\b`,
)

// Validate decides whether a candidate query may reach the engine. It is a
// pure textual check: no network, no engine, no parsing. Rejection reasons
// are stable strings safe to surface to callers.
func Validate(candidate CandidateQuery) ValidationVerdict {
	fields := strings.Fields(candidate.RawText)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "SELECT") {
		return ValidationVerdict{Reason: "only SELECT queries are allowed"}
	}
	if match := blockedKeywordPattern.FindString(candidate.RawText); match != "" {
		return ValidationVerdict{
			Reason: fmt.Sprintf("query contains blocked keyword %s", strings.ToUpper(match)),
		}
	}
	return ValidationVerdict{Accepted: true}
}
