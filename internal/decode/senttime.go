package decode

import (
	"strings"
	"time"

	"github.com/epalmerini/snoop/internal/rebus"
)

// Layouts tried in order. Zone-less layouts are read as local time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"01/02/2006 15:04:05 -07:00",
	"01/02/2006 15:04:05",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sentTime reads the Rebus sent time, falling back to the transport
// timestamp and then to the current time.
func (d *Decoder) sentTime(h Headers) time.Time {
	if s, ok := h[rebus.SentTime]; ok {
		if t, ok := parseTime(s); ok {
			return t
		}
		// Offsets carrying seconds such as "+01:00:00" are cut back to the
		// last colon and tried once more.
		if i := strings.LastIndex(s, ":"); i >= 0 {
			if t, ok := parseTime(s[:i]); ok {
				return t
			}
		}
	}

	if s, ok := h[rebus.TransportTimestamp]; ok {
		if t, ok := parseTime(s); ok {
			return t
		}
	}

	return d.now()
}
