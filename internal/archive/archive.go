// Package archive keeps raw analytics payloads and poll cycle history
// outside the suppression store: event pages as JSON Lines on local disk or
// S3, and cycle outcomes in DynamoDB.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ignite/bulkmail/internal/esp"
)

// ObjectKey returns the archive key of one page:
// <prefix>/<provider>/YYYY/MM/DD/<unix-nanos>.jsonl
func ObjectKey(prefix, provider string, at time.Time) string {
	at = at.UTC()
	return path.Join(strings.Trim(prefix, "/"), provider,
		at.Format("2006"), at.Format("01"), at.Format("02"),
		fmt.Sprintf("%d.jsonl", at.UnixNano()))
}

// encodeLines writes one compacted event per line.
func encodeLines(events []esp.RawEvent) ([]byte, error) {
	var buf bytes.Buffer
	for i, ev := range events {
		if err := json.Compact(&buf, ev); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
