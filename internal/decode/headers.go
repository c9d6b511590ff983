package decode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/epalmerini/snoop/internal/rebus"
	"golang.org/x/text/encoding/unicode"
)

// timestampLayout matches the round-trip format Rebus uses for dates.
const timestampLayout = "2006-01-02T15:04:05.0000000-07:00"

// Headers is the flat, canonical header map of a single message.
type Headers map[string]string

// Lookup returns the value of the first key present in h.
func (h Headers) Lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := h[k]; ok {
			return v, true
		}
	}
	return "", false
}

// NormalizeHeaders merges the raw header table with the basic properties.
// Properties win over raw headers of the same name.
func NormalizeHeaders(p Properties) Headers {
	h := make(Headers, len(p.Headers)+5)

	for k, v := range p.Headers {
		h[k] = headerString(v)
	}

	setIfNotEmpty(h, rebus.ContentType, p.ContentType)
	setIfNotEmpty(h, rebus.ContentEncoding, p.ContentEncoding)
	setIfNotEmpty(h, rebus.TransportMessageID, p.MessageID)
	setIfNotEmpty(h, rebus.TransportCorrelationID, p.CorrelationID)

	if p.Timestamp > 0 {
		h[rebus.TransportTimestamp] = time.Unix(p.Timestamp, 0).UTC().Format(timestampLayout)
	}

	return h
}

func setIfNotEmpty(h Headers, key, value string) {
	if value != "" {
		h[key] = value
	}
}

// headerString renders one raw header value. AMQP tables carry strings as
// []byte or string depending on the client; JSON snapshots carry any JSON value.
func headerString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		s, err := unicode.UTF8.NewDecoder().Bytes(val)
		if err != nil {
			return string(val)
		}
		return string(s)
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val)
	default:
		// Nested tables and arrays render as compact JSON.
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return fmt.Sprint(val)
	}
}
