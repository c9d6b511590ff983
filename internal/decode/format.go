package decode

import (
	"bytes"
	"encoding/json"
)

// FormatPayload indents text that holds a JSON object or array and returns
// anything else unchanged. Key order and values are kept as written.
func FormatPayload(text string) string {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 {
		return text
	}

	// Only objects and arrays qualify; bare scalars stay as they are.
	if first := trimmed[0]; first != '{' && first != '[' {
		return text
	}
	if !json.Valid(trimmed) {
		return text
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return text
	}
	return buf.String()
}
