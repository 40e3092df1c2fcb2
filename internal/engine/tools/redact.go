package tools

import "regexp"

// redactor masks secrets in captured tool output by replacing every
// match of a pattern list (built-in defaults plus configured extras),
// per spec.md §4.1(c). The api-key, bearer/token, secret, sk-ant- and
// sk- patterns are the same as the logger's DefaultRedactPatterns; the
// AWS access-key pattern is added here, and the logger's JWT and
// hex-secret patterns are not used.
type redactor struct {
	patterns []*regexp.Regexp
}

func newRedactor(extra []string) *redactor {
	all := append(append([]string{}, defaultRedactPatterns...), extra...)
	compiled := make([]*regexp.Regexp, 0, len(all))
	for _, pattern := range all {
		if re, err := regexp.Compile(pattern); err == nil {
			compiled = append(compiled, re)
		}
	}
	return &redactor{patterns: compiled}
}

func (r *redactor) redact(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

var defaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["\']?([a-zA-Z0-9_\-]{16,})["\']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["\']?([^\s"']{8,})["\']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
	`AKIA[0-9A-Z]{16}`,
}
