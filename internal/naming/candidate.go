// Package naming creates line items under a unique name. It pre-checks the
// order for existing names and escalates through a fixed sequence of
// candidate names when the ad server reports a collision.
package naming

import (
	"fmt"
	"strings"
	"time"
)

// NameContext carries the inputs that make retry candidates unique.
type NameContext struct {
	ExternalID string    // Campaign reference, used by the last-resort candidate
	Now        time.Time // Clock reading for timestamp suffixes
	Random     int       // Five digit random number (10000..99999)
	Token      string    // Random hex token, at least 12 characters
}

// NextCandidateName returns the name to try on the given attempt (1-based).
// It is pure: the same inputs always produce the same name.
//
//	1: base
//	2: base_R2_{unixMillis%100000}
//	3: base[:90]_RETRY_{unix}_{random}
//	4: base[:80]_UUID_{token[:8]}_{unix}
//	5+: {EXP<ref>|LINE}_{token[:12]}_{unix}
func NextCandidateName(attempt int, base string, nc NameContext) string {
	unix := nc.Now.Unix()
	switch {
	case attempt <= 1:
		return base
	case attempt == 2:
		return fmt.Sprintf("%s_R2_%d", base, nc.Now.UnixMilli()%100000)
	case attempt == 3:
		return fmt.Sprintf("%s_RETRY_%d_%d", truncate(base, 90), unix, nc.Random)
	case attempt == 4:
		return fmt.Sprintf("%s_UUID_%s_%d", truncate(base, 80), truncate(nc.Token, 8), unix)
	default:
		prefix := "LINE"
		if ref := strings.TrimSpace(nc.ExternalID); ref != "" {
			prefix = "EXP" + ref
		}
		return fmt.Sprintf("%s_%s_%d", prefix, truncate(nc.Token, 12), unix)
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// CleanName trims the name, drops characters outside printable ASCII and
// collapses runs of whitespace to a single space.
func CleanName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			b.WriteByte(' ')
		case r >= 0x20 && r <= 0x7e:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// precheckSuffix is appended when the cleaned name already exists.
func precheckSuffix(base string, now time.Time) string {
	return fmt.Sprintf("%s_C%d", base, now.Unix()%1000)
}
