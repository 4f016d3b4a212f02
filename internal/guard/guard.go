// internal/guard/guard.go
package guard

import (
	"fmt"
	"regexp"
	"strings"
)

// Guard enforces the read-only statement policy before any statement
// reaches a tenant pool. The checks are lexical: single statement, leading
// SELECT/WITH, keyword blocklist, and row-limit injection. Malformed input
// is the expected case here; Validate never panics.
type Guard struct {
	// DefaultLimit is appended when a statement carries no row-limiting
	// clause of its own.
	DefaultLimit int
}

func New(defaultLimit int) *Guard {
	if defaultLimit <= 0 {
		defaultLimit = 1000
	}
	return &Guard{DefaultLimit: defaultLimit}
}

// Verdict is the outcome of validating one candidate statement. When OK,
// Statement carries the text to execute (possibly with an injected LIMIT).
type Verdict struct {
	OK            bool
	Statement     string
	Reason        string
	LimitInjected int
}

var (
	blockedKeywords = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE|GRANT|REVOKE|CREATE|EXEC)\b`)
	limitClause     = regexp.MustCompile(`(?i)\b(LIMIT|FETCH\s+FIRST)\b`)
)

// Validate applies the policy rules in order and returns a rejection with a
// human-readable reason on the first violation.
func (g *Guard) Validate(statement string) Verdict {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return rejected("empty statement")
	}

	if reason, ok := singleStatement(trimmed); !ok {
		return rejected(reason)
	}

	body := stripLeadingComments(trimmed)
	first := firstKeyword(body)
	if !strings.EqualFold(first, "SELECT") && !strings.EqualFold(first, "WITH") {
		return rejected(fmt.Sprintf("not a read query: statement must begin with SELECT or WITH, got %q", first))
	}

	if m := blockedKeywords.FindString(statement); m != "" {
		return rejected(fmt.Sprintf("blocked keyword %q is not allowed", strings.ToUpper(m)))
	}

	v := Verdict{OK: true, Statement: strings.TrimSuffix(strings.TrimSpace(trimmed), ";")}
	if !limitClause.MatchString(v.Statement) {
		v.Statement = fmt.Sprintf("%s LIMIT %d", v.Statement, g.DefaultLimit)
		v.LimitInjected = g.DefaultLimit
	}
	return v
}

func rejected(reason string) Verdict {
	return Verdict{Reason: reason}
}

// singleStatement rejects stacked statements: a terminator followed by
// anything other than trailing whitespace. Terminators inside single-quoted
// literals and comments do not count.
func singleStatement(sql string) (string, bool) {
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			for i++; i < len(sql); i++ {
				if sql[i] == '\'' {
					break
				}
			}
		case '-':
			if i+1 < len(sql) && sql[i+1] == '-' {
				for i += 2; i < len(sql) && sql[i] != '\n'; i++ {
				}
			}
		case '/':
			if i+1 < len(sql) && sql[i+1] == '*' {
				end := strings.Index(sql[i+2:], "*/")
				if end < 0 {
					i = len(sql)
					break
				}
				i += 2 + end + 1
			}
		case ';':
			if strings.TrimSpace(sql[i+1:]) != "" {
				return "multiple statements are not allowed", false
			}
		}
	}
	return "", true
}

// stripLeadingComments removes whitespace and -- / block comments ahead of
// the first keyword.
func stripLeadingComments(sql string) string {
	for {
		sql = strings.TrimLeft(sql, " \t\r\n")
		switch {
		case strings.HasPrefix(sql, "--"):
			if idx := strings.IndexByte(sql, '\n'); idx >= 0 {
				sql = sql[idx+1:]
				continue
			}
			return ""
		case strings.HasPrefix(sql, "/*"):
			if idx := strings.Index(sql, "*/"); idx >= 0 {
				sql = sql[idx+2:]
				continue
			}
			return ""
		default:
			return sql
		}
	}
}

func firstKeyword(sql string) string {
	end := 0
	for end < len(sql) {
		c := sql[end]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			end++
			continue
		}
		break
	}
	return sql[:end]
}
