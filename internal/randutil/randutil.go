// Package randutil builds names for short-lived broker resources.
package randutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Suffix returns eight random hex characters.
func Suffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xFFFFFFFF)
	}
	return hex.EncodeToString(b)
}

// QueueName returns "<prefix>-<suffix>", with the prefix trimmed of
// surrounding dashes and defaulting to "snoop".
func QueueName(prefix string) string {
	prefix = strings.Trim(prefix, "- ")
	if prefix == "" {
		prefix = "snoop"
	}
	return prefix + "-" + Suffix()
}
