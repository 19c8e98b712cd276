package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0d 0h 0m"},
		{59 * time.Second, "0d 0h 0m"},
		{26*time.Hour + 3*time.Minute + 9*time.Second, "1d 2h 3m"},
		{72 * time.Hour, "3d 0h 0m"},
		{-90 * time.Minute, "-0d 1h 30m"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatDuration(c.in), c.in.String())
	}
}

func TestFormatPercentiles(t *testing.T) {
	assert.Equal(t, "n/a", FormatPercentiles(domain.PercentileTriple{}))
	p := domain.PercentileTriple{P50: 24 * time.Hour, P80: 48 * time.Hour, P90: 50 * time.Hour, Count: 4}
	assert.Equal(t, "1d 0h 0m / 2d 0h 0m / 2d 2h 0m", FormatPercentiles(p))
}

func TestChunkText(t *testing.T) {
	assert.Equal(t, []string{"ab\ncd", "ef"}, ChunkText("ab\ncd\nef", 5))
	assert.Equal(t, []string{"abc", "def", "g"}, ChunkText("abcdefg", 3))
	assert.Equal(t, []string{""}, ChunkText("", 10))
	assert.Equal(t, []string{"whole"}, ChunkText("whole", 0))

	long := strings.Repeat("line of text\n", 1000)
	for _, c := range ChunkText(long, MaxMessageRunes) {
		assert.LessOrEqual(t, len([]rune(c)), MaxMessageRunes)
	}
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `SD\-1 \(Story\) 1\.5 SP\!`, Escape("SD-1 (Story) 1.5 SP!"))
	assert.Equal(t, `a\\b`, Escape(`a\b`))
}

func sample() domain.SprintReport {
	ratio := 62.5
	line := domain.IssueLine{Key: "SD-1", Type: "Story", Summary: "Checkout flow redesign for mobile", StoryPoints: 5}
	unplanned := domain.IssueLine{Key: "SD-2", Type: "Bug", Summary: "Crash", StoryPoints: 3, LinkedRefs: []string{"UP-123"}}
	return domain.SprintReport{
		RunID:       "run-1",
		Project:     "SD",
		Sprint:      domain.Sprint{ID: "12", Name: "S12", StartAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), CompleteAt: time.Date(2024, 3, 15, 17, 30, 0, 0, time.UTC)},
		GeneratedAt: time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC),
		Goals:       domain.GoalsSection{Planned: domain.IssueGroup{Issues: []domain.IssueLine{line}}},
		LeadTime:    domain.TimeSection{Title: "Lead time", JQL: "project = SD"},
		CycleTime: domain.TimeSection{
			Title:       "Cycle time",
			JQL:         "project = SD",
			Percentiles: domain.PercentileTriple{P50: time.Hour, P80: 2 * time.Hour, P90: 3 * time.Hour, Count: 2},
			Rows: []domain.TimeRow{
				{Key: "SD-1", Type: "Story", Summary: line.Summary, Value: 3 * time.Hour},
				{Key: "SD-2", Type: "Bug", Summary: "Crash", Value: time.Hour, Incomplete: true},
			},
		},
		InReview: domain.TimeSection{Title: "In Review time", JQL: "project = SD"},
		Velocity: domain.VelocitySection{
			Committed:    domain.IssueGroup{Issues: []domain.IssueLine{line, unplanned}, StoryPoints: 8},
			Completed:    domain.IssueGroup{JQL: "project = SD and sprint = 12", Issues: []domain.IssueLine{line}, StoryPoints: 5},
			NotCompleted: domain.IssueGroup{Issues: []domain.IssueLine{unplanned}, StoryPoints: 3},
			Ratio:        &ratio,
		},
		Unplanned: domain.UnplannedSection{Unplanned: domain.IssueGroup{Issues: []domain.IssueLine{unplanned}, StoryPoints: 3}, CompletedStoryPoints: 8},
		Defects:   domain.DefectSection{Closed: 4, Remaining: 2},
		Incomplete: []string{"SD-2"},
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, sample()))
	out := buf.String()

	assert.Contains(t, out, "'SD' PROJECT STATISTICS FOR SPRINT 12 'S12'")
	assert.Contains(t, out, "1 planned sprint goal(s):")
	assert.Contains(t, out, "    SD-1 (Story), SP=5 'Checkout flow redesign for mobile'")
	assert.Contains(t, out, "50th, 80th, 90th percentiles: n/a")
	assert.Contains(t, out, "50th, 80th, 90th percentiles: 0d 1h 0m / 0d 2h 0m / 0d 3h 0m")
	assert.Contains(t, out, "Checkout flow redesi")
	assert.NotContains(t, out, "Checkout flow redesig ")
	assert.Contains(t, out, "SD-2 *")
	assert.Contains(t, out, "Completed/committed ratio: 62.50%")
	assert.Contains(t, out, "has linked ticket(s): UP-123")
	assert.NotContains(t, out, "Unplanned/completed ratio")
	assert.Contains(t, out, "Closed (Medium+): 4")
	assert.Contains(t, out, "excluded from percentiles: SD-2")
}

func TestMarkdown(t *testing.T) {
	chunks := Markdown(sample())
	require.Len(t, chunks, 1)
	md := chunks[0]
	assert.Contains(t, md, "*Sprint Pulse* SD")
	assert.Contains(t, md, "*Goals:* 0/1 completed")
	assert.Contains(t, md, `Cycle time: 0d 1h 0m / 0d 2h 0m / 0d 3h 0m \(n\=2\)`)
	assert.Contains(t, md, `*Velocity:* 5 of 8 SP \(62\.50%\)`)
	assert.Contains(t, md, `\- SD\-2 \-\> UP\-123`)
	assert.Contains(t, md, `\(Medium\+\): 4 closed, 2 remaining`)
}
