/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package report

import (
	"fmt"
	"strings"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

// MaxMessageRunes keeps digest chunks under the Bot API message limit.
const MaxMessageRunes = 4000

var markdownV2 = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`, "~", `\~`, "`", "\\`",
	">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// Escape quotes every MarkdownV2 special character.
func Escape(s string) string { return markdownV2.Replace(s) }

// Markdown builds the Telegram digest of r, already split into sendable chunks.
func Markdown(r domain.SprintReport) []string {
	b := &strings.Builder{}
	e := Escape
	fmt.Fprintf(b, "*Sprint Pulse* %s\n", e(r.Project))
	fmt.Fprintf(b, "Sprint %s %s\n", e(r.Sprint.ID), e("'"+r.Sprint.Name+"'"))
	fmt.Fprintf(b, "%s\n\n", e(r.Sprint.StartAt.Format("2006-01-02")+" .. "+r.Sprint.CompleteAt.Format("2006-01-02")))

	fmt.Fprintf(b, "*Goals:* %d/%d completed\n\n", len(r.Goals.Completed.Issues), len(r.Goals.Planned.Issues))

	fmt.Fprintf(b, "*Development time* %s\n", e("(p50 / p80 / p90)"))
	for _, s := range []domain.TimeSection{r.LeadTime, r.CycleTime, r.InReview} {
		fmt.Fprintf(b, "%s: %s %s\n", e(s.Title), e(FormatPercentiles(s.Percentiles)), e(fmt.Sprintf("(n=%d)", s.Percentiles.Count)))
	}

	v := r.Velocity
	fmt.Fprintf(b, "\n*Velocity:* %s of %s SP %s\n", e(FormatPoints(v.Completed.StoryPoints)), e(FormatPoints(v.Committed.StoryPoints)), e("("+formatRatio(v.Ratio)+")"))
	if n := len(v.NotCompleted.Issues); n > 0 {
		fmt.Fprintf(b, "Not completed: %d\n", n)
	}
	if n := len(v.Removed.Issues); n > 0 {
		fmt.Fprintf(b, "Removed from sprint: %d\n", n)
	}

	u := r.Unplanned
	fmt.Fprintf(b, "\n*Unplanned:* %s SP %s\n", e(FormatPoints(u.Unplanned.StoryPoints)), e("("+formatRatio(u.Ratio)+")"))
	for _, l := range u.Unplanned.Issues {
		fmt.Fprintf(b, "%s %s\n", e("- "+l.Key), e("-> "+strings.Join(l.LinkedRefs, ", ")))
	}

	f := r.Focus
	fmt.Fprintf(b, "\n*Focus:*\n")
	for _, g := range []struct {
		name string
		grp  domain.IssueGroup
	}{{"Roadmap", f.Roadmap}, {"Unplanned", f.Unplanned}, {"Bugs", f.Bugs}, {"Tech debt", f.TechDebt}, {"Other", f.Other}} {
		fmt.Fprintf(b, "%s\n", e(fmt.Sprintf("%s: %d issues, %s SP", g.name, len(g.grp.Issues), FormatPoints(g.grp.StoryPoints))))
	}

	fmt.Fprintf(b, "\n*Defects* %s: %d closed, %d remaining\n", e("(Medium+)"), r.Defects.Closed, r.Defects.Remaining)
	if len(r.Incomplete) > 0 {
		fmt.Fprintf(b, "\n_Incomplete changelog:_ %s\n", e(strings.Join(r.Incomplete, ", ")))
	}
	return ChunkText(b.String(), MaxMessageRunes)
}
