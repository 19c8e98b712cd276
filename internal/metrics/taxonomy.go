/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
	"gopkg.in/yaml.v3"
)

// Category names as they appear in reports.
const (
	CategoryLead     = "lead time"
	CategoryCycle    = "cycle time"
	CategoryInReview = "in review"
)

// CategoryRollup is the time an issue spent in each nested status category.
type CategoryRollup struct {
	LeadTime  time.Duration
	CycleTime time.Duration
	InReview  time.Duration
}

// Map returns the rollup keyed by category name.
func (r CategoryRollup) Map() map[string]time.Duration {
	return map[string]time.Duration{
		CategoryLead:     r.LeadTime,
		CategoryCycle:    r.CycleTime,
		CategoryInReview: r.InReview,
	}
}

// TaxonomyFile is the YAML form of a taxonomy. Each level lists only the statuses it adds
// to the level below it, so in_review ⊆ cycle ⊆ lead ⊆ tracked holds by construction.
type TaxonomyFile struct {
	InReview []string `yaml:"in_review"`
	Cycle    []string `yaml:"cycle"`
	Lead     []string `yaml:"lead"`
	Tracked  []string `yaml:"tracked"`
}

// Taxonomy classifies status names into the nested categories.
type Taxonomy struct {
	inReview map[string]struct{}
	cycle    map[string]struct{}
	lead     map[string]struct{}
	all      map[string]struct{}
}

// DefaultTaxonomyFile is the workflow the reports were built around.
func DefaultTaxonomyFile() TaxonomyFile {
	return TaxonomyFile{
		InReview: []string{"In Review"},
		Cycle:    []string{"In Progress", "Product Review", "PO Review", "Ready for testing", "Testing", "Ready for Deploy"},
		Lead:     []string{"To Do", "New", "Analyze"},
		Tracked:  []string{"Done"},
	}
}

// DefaultTaxonomy returns the built-in taxonomy.
func DefaultTaxonomy() *Taxonomy {
	t, _ := NewTaxonomy(DefaultTaxonomyFile())
	return t
}

// NewTaxonomy builds the cumulative category sets from f.
func NewTaxonomy(f TaxonomyFile) (*Taxonomy, error) {
	t := &Taxonomy{}
	levels := [][]string{f.InReview, f.Cycle, f.Lead, f.Tracked}
	acc := map[string]struct{}{}
	sets := make([]map[string]struct{}, 0, len(levels))
	for _, lvl := range levels {
		for _, s := range lvl {
			if strings.TrimSpace(s) == "" {
				return nil, errors.New("taxonomy: empty status name")
			}
			acc[s] = struct{}{}
		}
		cp := make(map[string]struct{}, len(acc))
		for k := range acc {
			cp[k] = struct{}{}
		}
		sets = append(sets, cp)
	}
	t.inReview, t.cycle, t.lead, t.all = sets[0], sets[1], sets[2], sets[3]
	if len(t.all) == 0 {
		return nil, errors.New("taxonomy: no statuses configured")
	}
	return t, nil
}

// LoadTaxonomy reads a YAML taxonomy file. An empty path yields the default taxonomy.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTaxonomy(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var f TaxonomyFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	return NewTaxonomy(f)
}

// Tracked lists every classified status, sorted.
func (t *Taxonomy) Tracked() []string {
	out := make([]string, 0, len(t.all))
	for s := range t.all {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Check fails with a TaxonomyGapError on the first status the taxonomy does not classify.
func (t *Taxonomy) Check(issueKey string, statuses ...string) error {
	for _, s := range statuses {
		if _, ok := t.all[s]; !ok {
			return &TaxonomyGapError{IssueKey: issueKey, Status: s}
		}
	}
	return nil
}

// CheckLog validates both sides of every status transition in log, including
// terminal statuses that never accrue time.
func (t *Taxonomy) CheckLog(issueKey string, log domain.EventLog) error {
	return t.Check(issueKey, log.Statuses()...)
}

// Rollup sums durations into the categories each status belongs to. A status may count
// toward several nested categories at once; lead time includes cycle time.
// Every key is validated before any arithmetic happens.
func (t *Taxonomy) Rollup(issueKey string, d StatusDurations) (CategoryRollup, error) {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := t.Check(issueKey, keys...); err != nil {
		return CategoryRollup{}, err
	}
	var r CategoryRollup
	for _, status := range keys {
		v := d[status]
		if _, ok := t.lead[status]; ok {
			r.LeadTime += v
		}
		if _, ok := t.cycle[status]; ok {
			r.CycleTime += v
		}
		if _, ok := t.inReview[status]; ok {
			r.InReview += v
		}
	}
	return r, nil
}
