package cli

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/epalmerini/snoop/internal/decode"
)

// filter selects messages with a "field:query" expression. Fields are
// rk (routing key), ex (exchange), type, queue (source queue), id, hdr
// (header key or value), body and re (regular expression over all of them).
// Without a prefix the query is matched everywhere. Matching is a
// case-insensitive substring test except for re.
type filter struct {
	field string
	query string
	re    *regexp.Regexp
}

var filterFields = map[string]bool{
	"rk": true, "ex": true, "type": true, "queue": true,
	"id": true, "hdr": true, "body": true, "re": true,
}

func parseFilterQuery(expr string) (field, query string) {
	if prefix, rest, ok := strings.Cut(expr, ":"); ok && filterFields[prefix] {
		return prefix, rest
	}
	return "", expr
}

// parseFilter returns nil for an empty expression.
func parseFilter(expr string) (*filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	field, query := parseFilterQuery(expr)
	f := &filter{field: field, query: strings.ToLower(query)}
	if field == "re" {
		re, err := regexp.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("invalid filter regex: %w", err)
		}
		f.re = re
	}
	return f, nil
}

func (f *filter) match(m decode.Message) bool {
	if f == nil {
		return true
	}
	if f.re != nil {
		for _, s := range searchable(m, true) {
			if f.re.MatchString(s) {
				return true
			}
		}
		return false
	}

	switch f.field {
	case "rk":
		return f.contains(m.RoutingKey)
	case "ex":
		return f.contains(m.Exchange)
	case "type":
		return f.contains(m.MessageType)
	case "queue":
		return f.contains(m.SourceQueue)
	case "id":
		return f.contains(m.MessageID)
	case "body":
		return f.contains(m.Body)
	case "hdr":
		for _, h := range m.Headers {
			if f.contains(h.Key) || f.contains(h.Value) {
				return true
			}
		}
		return false
	}

	for _, s := range searchable(m, false) {
		if f.contains(s) {
			return true
		}
	}
	return false
}

func (f *filter) contains(s string) bool {
	return strings.Contains(strings.ToLower(s), f.query)
}

func (f *filter) apply(msgs []decode.Message) []decode.Message {
	if f == nil {
		return msgs
	}
	out := make([]decode.Message, 0, len(msgs))
	for _, m := range msgs {
		if f.match(m) {
			out = append(out, m)
		}
	}
	return out
}

func searchable(m decode.Message, withHeaders bool) []string {
	fields := []string{m.RoutingKey, m.Exchange, m.MessageType, m.SourceQueue, m.MessageID, m.Body, m.ErrorDetails}
	if withHeaders {
		for _, h := range m.Headers {
			fields = append(fields, h.Key+"="+h.Value)
		}
	}
	return fields
}
