package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var t0 = time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)

func status(at time.Duration, from, to string) domain.Event {
	return domain.Event{Field: domain.FieldStatus, FromVal: from, ToVal: to, At: t0.Add(at)}
}

func sprint(at time.Duration, from, to string) domain.Event {
	return domain.Event{Field: domain.FieldSprint, FromVal: from, ToVal: to, At: t0.Add(at)}
}

func scenarioLog() domain.EventLog {
	return domain.EventLog{
		status(1*day, "To Do", "In Progress"),
		status(3*day, "In Progress", "In Review"),
		status(4*day, "In Review", "Done"),
	}
}

func TestAccumulateScenario(t *testing.T) {
	got := Accumulate(t0, scenarioLog())
	assert.Equal(t, StatusDurations{"To Do": 1 * day, "In Progress": 2 * day, "In Review": 1 * day}, got)

	roll, err := DefaultTaxonomy().Rollup("PRJ-1", got)
	require.NoError(t, err)
	assert.Equal(t, CategoryRollup{LeadTime: 4 * day, CycleTime: 3 * day, InReview: 1 * day}, roll)
	assert.Equal(t, 4*day, roll.Map()[CategoryLead])
}

func TestAccumulateSumEqualsLastTransitionMinusCreated(t *testing.T) {
	tests := []struct {
		name string
		log  domain.EventLog
		want time.Duration
	}{
		{name: "scenario", log: scenarioLog(), want: 4 * day},
		{
			name: "sprint and other fields interleaved",
			log: domain.EventLog{
				sprint(time.Hour, "", "12"),
				status(2*time.Hour, "New", "To Do"),
				{Field: "assignee", FromVal: "a", ToVal: "b", At: t0.Add(5 * time.Hour)},
				status(7*time.Hour, "To Do", "In Progress"),
				sprint(9*time.Hour, "12", "13"),
			},
			want: 7 * time.Hour,
		},
		{
			name: "revisited status accumulates",
			log: domain.EventLog{
				status(1*day, "In Progress", "In Review"),
				status(2*day, "In Review", "In Progress"),
				status(5*day, "In Progress", "Done"),
			},
			want: 5 * day,
		},
		{
			name: "no-op transition is still a boundary",
			log: domain.EventLog{
				status(1*day, "To Do", "To Do"),
				status(3*day, "To Do", "Done"),
			},
			want: 3 * day,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Accumulate(t0, tt.log)
			assert.Equal(t, tt.want, got.Total())
			for s, d := range got {
				assert.GreaterOrEqual(t, d, time.Duration(0), s)
			}
		})
	}
}

func TestAccumulateRevisitAndNoop(t *testing.T) {
	got := Accumulate(t0, domain.EventLog{
		status(1*day, "In Progress", "In Review"),
		status(2*day, "In Review", "In Progress"),
		status(5*day, "In Progress", "In Progress"),
	})
	assert.Equal(t, StatusDurations{"In Progress": 4 * day, "In Review": 1 * day}, got)
}

func TestAccumulateWithoutStatusEventsIsEmpty(t *testing.T) {
	assert.Empty(t, Accumulate(t0, nil))
	assert.Empty(t, Accumulate(t0, domain.EventLog{sprint(day, "", "3")}))
}

func TestAccumulateOpenIssueGetsNoTimeAfterLastTransition(t *testing.T) {
	got := Accumulate(t0, domain.EventLog{status(2*day, "To Do", "In Progress")})
	assert.Equal(t, StatusDurations{"To Do": 2 * day}, got)
	_, ok := got["In Progress"]
	assert.False(t, ok)
}

func TestRollupOrderingHolds(t *testing.T) {
	tax := DefaultTaxonomy()
	inputs := []StatusDurations{
		{},
		{"Done": day},
		{"New": 3 * day, "Testing": 2 * time.Hour, "In Review": time.Minute},
		{"In Review": 5 * day},
		{"Analyze": day, "PO Review": day, "Ready for Deploy": day, "Product Review": day},
	}
	for _, in := range inputs {
		r, err := tax.Rollup("X-1", in)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r.LeadTime, r.CycleTime)
		assert.GreaterOrEqual(t, r.CycleTime, r.InReview)
		assert.GreaterOrEqual(t, r.InReview, time.Duration(0))
	}
}

func TestRollupDoneIsTrackedButUncounted(t *testing.T) {
	r, err := DefaultTaxonomy().Rollup("X-1", StatusDurations{"Done": day, "To Do": time.Hour})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, r.LeadTime)
	assert.Zero(t, r.CycleTime)
}

func TestRollupTaxonomyGap(t *testing.T) {
	_, err := DefaultTaxonomy().Rollup("X-7", StatusDurations{"To Do": day, "Blocked": day})
	var gap *TaxonomyGapError
	require.True(t, errors.As(err, &gap))
	assert.Equal(t, "X-7", gap.IssueKey)
	assert.Equal(t, "Blocked", gap.Status)
	assert.Contains(t, err.Error(), "Blocked")
}

func TestCheckLogCatchesTerminalStatus(t *testing.T) {
	log := domain.EventLog{status(day, "In Progress", "Closed")}
	d := Accumulate(t0, log)
	_, err := DefaultTaxonomy().Rollup("X-2", d)
	require.NoError(t, err, "Closed never accrued time so the map alone cannot see it")

	err = DefaultTaxonomy().CheckLog("X-2", log)
	var gap *TaxonomyGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, "Closed", gap.Status)
}

func TestDefaultTaxonomyMembership(t *testing.T) {
	tax := DefaultTaxonomy()
	assert.Equal(t, []string{
		"Analyze", "Done", "In Progress", "In Review", "New", "PO Review",
		"Product Review", "Ready for Deploy", "Ready for testing", "Testing", "To Do",
	}, tax.Tracked())
	_, inCycle := tax.cycle["To Do"]
	assert.False(t, inCycle)
	_, inLead := tax.lead["In Review"]
	assert.True(t, inLead)
	_, leadHasDone := tax.lead["Done"]
	assert.False(t, leadHasDone)
}

func TestLoadTaxonomyFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	body := "in_review: [\"Code Review\"]\ncycle: [\"Doing\"]\nlead: [\"Backlog\"]\ntracked: [\"Closed\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	tax, err := LoadTaxonomy(path)
	require.NoError(t, err)
	r, err := tax.Rollup("X-1", StatusDurations{"Code Review": day, "Doing": day, "Backlog": day, "Closed": day})
	require.NoError(t, err)
	assert.Equal(t, CategoryRollup{LeadTime: 3 * day, CycleTime: 2 * day, InReview: day}, r)

	def, err := LoadTaxonomy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTaxonomy().Tracked(), def.Tracked())

	_, err = LoadTaxonomy(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestNewTaxonomyRejectsEmpty(t *testing.T) {
	_, err := NewTaxonomy(TaxonomyFile{})
	assert.Error(t, err)
	_, err = NewTaxonomy(TaxonomyFile{Cycle: []string{" "}})
	assert.Error(t, err)
}

func TestSprintMembershipsKeepsRemovedSprints(t *testing.T) {
	got := SprintMemberships(domain.EventLog{sprint(day, "", "12"), sprint(2*day, "12", "")})
	assert.Equal(t, SprintSet{"12": {}}, got)
}

func TestSprintMembershipsBulkValues(t *testing.T) {
	log := domain.EventLog{
		sprint(day, "", "7"),
		sprint(2*day, "7", "7, 8"),
		sprint(3*day, "7, 8", "9"),
		status(4*day, "To Do", "Done"),
	}
	got := SprintMemberships(log)
	assert.Equal(t, []string{"7", "8", "9"}, got.Sorted())
	assert.True(t, got.Has("8"))
	assert.False(t, got.Has("10"))
}

func TestSprintMembershipsIdempotentAndOrderInsensitive(t *testing.T) {
	log := domain.EventLog{sprint(day, "", "3"), sprint(2*day, "3", "4, 5"), sprint(3*day, "5", "")}
	first := SprintMemberships(log)
	assert.Equal(t, first, SprintMemberships(log))
	assert.Equal(t, first, SprintMemberships(log.Reversed()))

	// dropping the event where 5 only appears as "from" keeps 5 via its "to" occurrence
	assert.True(t, SprintMemberships(log[:2]).Has("5"))
}

func TestParseSprintIDs(t *testing.T) {
	assert.Nil(t, ParseSprintIDs(""))
	assert.Equal(t, []string{"42"}, ParseSprintIDs("42"))
	assert.Equal(t, []string{"1", "2", "3"}, ParseSprintIDs("1, 2, 3"))
	assert.Equal(t, []string{"101", "102"}, SprintSet{"102": {}, "101": {}}.Sorted())
	assert.Equal(t, []string{"9", "10"}, SprintSet{"10": {}, "9": {}}.Sorted())
}

func days(ns ...int) []time.Duration {
	out := make([]time.Duration, len(ns))
	for i, n := range ns {
		out[i] = time.Duration(n) * day
	}
	return out
}

func TestPercentileLinear(t *testing.T) {
	got, err := Percentile(days(5, 3, 1, 4, 2), 0.5)
	require.NoError(t, err)
	assert.Equal(t, 3*day, got)

	got, err = Percentile(days(1, 2, 3, 4, 5), 0.8)
	require.NoError(t, err)
	assert.Equal(t, 4*day+day/5, got)

	got, err = Percentile(days(1, 2, 3, 4), 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2*day+day/2, got)

	got, err = Percentile(days(1, 2, 3, 4, 5), 1)
	require.NoError(t, err)
	assert.Equal(t, 5*day, got)
}

func TestPercentileSingleAndEmpty(t *testing.T) {
	for _, q := range []float64{0, 0.25, 0.5, 0.9, 1} {
		got, err := Percentile(days(10), q)
		require.NoError(t, err)
		assert.Equal(t, 10*day, got)
	}
	_, err := Percentile(nil, 0.5)
	assert.ErrorIs(t, err, ErrEmptyAggregation)
	_, err = Percentile(days(1), 1.5)
	assert.Error(t, err)
}

func TestPercentileMonotonicInQ(t *testing.T) {
	values := days(9, 1, 14, 3, 3, 7, 2)
	prev := time.Duration(-1)
	for q := 0.0; q <= 1.0; q += 0.05 {
		got, err := Percentile(values, q)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	values := days(3, 1, 2)
	_, err := Percentile(values, 0.5)
	require.NoError(t, err)
	assert.Equal(t, days(3, 1, 2), values)
}

func TestPercentilesTriple(t *testing.T) {
	got, err := Percentiles(days(1, 2, 3, 4, 5))
	require.NoError(t, err)
	assert.Equal(t, domain.PercentileTriple{P50: 3 * day, P80: 4*day + day/5, P90: 4*day + 3*day/5, Count: 5}, got)

	empty, err := Percentiles(nil)
	assert.ErrorIs(t, err, ErrEmptyAggregation)
	assert.Zero(t, empty.Count)
}

func TestAnalyze(t *testing.T) {
	il := domain.IssueLog{
		Issue: domain.Issue{Key: "PRJ-9", Type: "Story", CreatedAt: t0},
		Log:   append(scenarioLog(), sprint(2*day, "", "31"), sprint(5*day, "31", "32")),
	}
	m, err := Analyze(il, DefaultTaxonomy())
	require.NoError(t, err)
	assert.Equal(t, 4*day, m.LeadTime)
	assert.Equal(t, 3*day, m.CycleTime)
	assert.Equal(t, day, m.InReview)
	assert.Equal(t, []string{"31", "32"}, m.Sprints)

	il.Log = append(il.Log, status(6*day, "Done", "Reopened"))
	_, err = Analyze(il, DefaultTaxonomy())
	var gap *TaxonomyGapError
	assert.ErrorAs(t, err, &gap)
}
