package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	orderCodePrefix = "ORD-"
	maxDailySeq     = 9999
)

// OrderCodePrefix returns "ORD-yyyyMMdd-" for the UTC day of now.
func OrderCodePrefix(now time.Time) string {
	return orderCodePrefix + now.UTC().Format("20060102") + "-"
}

// NextOrderCode computes the next daily code from the highest code already
// issued today. latest may be empty or belong to another day.
// The unique index on orders.code is what actually guarantees uniqueness.
func NextOrderCode(now time.Time, latest string) (string, error) {
	prefix := OrderCodePrefix(now)
	seq, _ := OrderCodeSequence(latest, prefix)
	if seq >= maxDailySeq {
		return "", Conflict(CodeSequenceExhausted,
			fmt.Sprintf("daily order sequence exhausted for %s", strings.TrimSuffix(prefix, "-")), nil)
	}
	return fmt.Sprintf("%s%04d", prefix, seq+1), nil
}

// OrderCodeSequence extracts the sequence of code when it carries prefix.
func OrderCodeSequence(code, prefix string) (int, bool) {
	if code == "" || !strings.HasPrefix(code, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(code[len(prefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
