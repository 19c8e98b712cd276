/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package report renders sprint reports as plain text and as Telegram digests.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

const day = 24 * time.Hour

// FormatDuration renders d as "Xd Yh Zm"; seconds are dropped.
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := d / day
	d -= days * day
	hours := d / time.Hour
	d -= hours * time.Hour
	return fmt.Sprintf("%s%dd %dh %dm", sign, days, hours, d/time.Minute)
}

// FormatPercentiles renders the 50/80/90 triple, or "n/a" when there were no samples.
func FormatPercentiles(p domain.PercentileTriple) string {
	if p.Count == 0 {
		return "n/a"
	}
	return FormatDuration(p.P50) + " / " + FormatDuration(p.P80) + " / " + FormatDuration(p.P90)
}

// FormatPoints prints story points without trailing zeros.
func FormatPoints(sp float64) string {
	return strconv.FormatFloat(sp, 'f', -1, 64)
}

func formatRatio(r *float64) string {
	if r == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*r, 'f', 2, 64) + "%"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ChunkText splits s into chunks of at most max runes, breaking on line boundaries where
// possible. Lines longer than max are hard-split.
func ChunkText(s string, max int) []string {
	if max <= 0 {
		return []string{s}
	}
	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, ln := range strings.Split(s, "\n") {
		r := []rune(ln)
		if len(r) > max {
			flush()
			for i := 0; i < len(r); i += max {
				j := min(i+max, len(r))
				chunks = append(chunks, string(r[i:j]))
			}
			continue
		}
		extra := len(r)
		if curLen > 0 {
			extra++
		}
		if curLen+extra > max {
			flush()
			extra = len(r)
		}
		if curLen > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(ln)
		curLen += extra
	}
	flush()
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	return chunks
}
