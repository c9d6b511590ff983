package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epalmerini/snoop/internal/decode"
)

func filterFixture() []decode.Message {
	return []decode.Message{
		{
			MessageID:   "a1",
			RoutingKey:  "events.user.created",
			Exchange:    "main",
			MessageType: "Users.UserCreated",
			SourceQueue: "users",
			Body:        `{"name":"Ada"}`,
			Headers:     []decode.Header{{Key: "rbs2-intent", Value: "pub"}},
		},
		{
			MessageID:    "b2",
			RoutingKey:   "events.order.placed",
			Exchange:     "orders",
			MessageType:  "Shop.OrderPlaced",
			SourceQueue:  "shop",
			Body:         `{"total":10}`,
			ErrorDetails: "System.TimeoutException",
			Headers:      []decode.Header{{Key: "rbs2-intent", Value: "p2p"}},
		},
		{
			MessageID:   "c3",
			RoutingKey:  "logs.error.timeout",
			MessageType: "Ops.Alert",
			SourceQueue: "ops",
			Body:        "plain text",
		},
	}
}

func ids(msgs []decode.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.MessageID)
	}
	return out
}

func TestFilter_Apply(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"empty keeps all", "", []string{"a1", "b2", "c3"}},
		{"unprefixed matches anywhere", "user", []string{"a1"}},
		{"case insensitive", "ORDERPLACED", []string{"b2"}},
		{"unprefixed includes error details", "timeoutexception", []string{"b2"}},
		{"routing key", "rk:events.", []string{"a1", "b2"}},
		{"exchange", "ex:orders", []string{"b2"}},
		{"type", "type:alert", []string{"c3"}},
		{"source queue", "queue:shop", []string{"b2"}},
		{"message id", "id:c3", []string{"c3"}},
		{"header value", "hdr:p2p", []string{"b2"}},
		{"header key", "hdr:intent", []string{"a1", "b2"}},
		{"body", "body:total", []string{"b2"}},
		{"regex", `re:^events\.`, []string{"a1", "b2"}},
		{"regex over headers", `re:rbs2-intent=pub`, []string{"a1"}},
		{"unknown prefix is plain text", "nope:x", []string{}},
		{"no matches", "zzz_nonexistent", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := parseFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(f.apply(filterFixture())))
		})
	}
}

func TestParseFilter_InvalidRegex(t *testing.T) {
	_, err := parseFilter("re:[invalid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter regex")
}

func TestParseFilterQuery(t *testing.T) {
	tests := []struct {
		expr, field, query string
	}{
		{"rk:orders", "rk", "orders"},
		{"body:a:b", "body", "a:b"},
		{"http://x", "", "http://x"},
		{"plain", "", "plain"},
	}
	for _, tt := range tests {
		field, query := parseFilterQuery(tt.expr)
		if field != tt.field || query != tt.query {
			t.Errorf("parseFilterQuery(%q) = %q, %q; want %q, %q", tt.expr, field, query, tt.field, tt.query)
		}
	}
}
