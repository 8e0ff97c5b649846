package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Invoice numbers follow INV-YYYYMM-NNNN: the year-month bucket of
// generation plus a zero-padded sequence that is unique within the bucket.
// The format is persisted and user-facing, so it never changes shape.

// NumberBucketPrefix returns the bucket prefix for the given time,
// e.g. "INV-202609-".
func NumberBucketPrefix(now time.Time) string {
	return fmt.Sprintf("INV-%04d%02d-", now.Year(), int(now.Month()))
}

// NextInvoiceNumber generates the next number within the current bucket.
// existing holds every already-assigned number that starts with the bucket
// prefix; the sequence is the highest numeric suffix incremented by one and
// resets to 1 in a fresh bucket. Unparseable suffixes are skipped; a
// previously assigned number never fails the save. Only when the bucket
// contains numbers and none of them parse does generation fall back to a
// timestamp-derived number.
func NextInvoiceNumber(existing []string, now time.Time) string {
	prefix := NumberBucketPrefix(now)
	max, inBucket, parsed := 0, 0, 0
	for _, n := range existing {
		suffix, ok := strings.CutPrefix(n, prefix)
		if !ok {
			continue // different bucket, different sequence
		}
		inBucket++
		seq, err := strconv.Atoi(suffix)
		if err != nil || seq < 0 {
			continue
		}
		parsed++
		if seq > max {
			max = seq
		}
	}
	if inBucket > 0 && parsed == 0 {
		return fallbackInvoiceNumber(now)
	}
	return fmt.Sprintf("%s%04d", prefix, max+1)
}

// fallbackInvoiceNumber derives a unique number from the wall clock, the
// same escape hatch the numbering has always had when a stored number is
// unparseable.
func fallbackInvoiceNumber(now time.Time) string {
	return "INV-" + now.Format("20060102150405")
}
