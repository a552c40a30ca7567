// Package progress computes per-member and badge-level completion
// fractions from raw badge progress markers.
package progress

import (
	"fmt"

	"github.com/scoutreports/osmsync/internal/utils"
	"github.com/scoutreports/osmsync/pkg/osm"
)

// PartGroup is one logical requirement of a badge: every part sharing
// a display name, counted together.
type PartGroup struct {
	Name    string
	PartIDs []string
}

// Size returns how many trackable sub-items the group has.
func (g PartGroup) Size() int {
	return len(g.PartIDs)
}

// GroupParts buckets badge parts by display name in first-seen order.
// Parts with all-distinct names yield single-item groups.
func GroupParts(parts []osm.BadgePart) []PartGroup {
	var groups []PartGroup
	index := map[string]int{}
	for _, part := range parts {
		if pos, ok := index[part.Name]; ok {
			groups[pos].PartIDs = append(groups[pos].PartIDs, part.ID)
			continue
		}
		index[part.Name] = len(groups)
		groups = append(groups, PartGroup{Name: part.Name, PartIDs: []string{part.ID}})
	}
	return groups
}

// GroupFractions returns one completion fraction per group for a single
// member. A member whose badge is globally marked completed counts as
// 1.0 for every group regardless of the raw markers.
func GroupFractions(record *osm.BadgeProgress, groups []PartGroup) []float64 {
	fractions := make([]float64, len(groups))
	for i, group := range groups {
		if record.Completed {
			fractions[i] = 1.0
			continue
		}
		if group.Size() == 0 {
			continue
		}
		count := 0
		for _, id := range group.PartIDs {
			if _, ok := record.Parts[id]; ok {
				count++
			}
		}
		fractions[i] = float64(count) / float64(group.Size())
	}
	return fractions
}

// UngroupedFraction returns a member's fraction across a badge whose
// parts are all distinct: markers present over total parts.
func UngroupedFraction(record *osm.BadgeProgress, partCount int) float64 {
	if record.Completed {
		return 1.0
	}
	if partCount == 0 {
		return 0
	}
	return float64(len(record.Parts)) / float64(partCount)
}

// Summary is the badge-level statistic behind the overview bar-charts:
// the mean marker count per member, scaled to 100, divided by the
// number of parts. The two-stage division is kept exactly as the
// existing reports expect it; it is not a true weighted percentage.
// An empty member list or a partless badge yields 0.
func Summary(records []*osm.BadgeProgress, partCount int) float64 {
	if len(records) == 0 || partCount == 0 {
		return 0
	}
	total := 0
	for _, record := range records {
		total += len(record.Parts)
	}
	mean := float64(total) * 100 / float64(len(records))
	return mean / float64(partCount)
}

// SchemeBar is one row of an award-scheme overview chart.
type SchemeBar struct {
	Label      string
	Completion float64
}

// SchemeSummary produces the overview rows for one scheme badge,
// loading each referenced badge's progress on demand. badges maps
// badge identifier to the loaded badge definitions of the term.
func SchemeSummary(sess *osm.Session, badges map[string]*osm.Badge, scheme osm.AwardSchemeBadge) ([]SchemeBar, error) {
	var bars []SchemeBar
	for _, part := range scheme.Parts {
		badge, ok := badges[part.ID]
		if !ok {
			return nil, fmt.Errorf("scheme part %q references unknown badge %s", part.Name, part.ID)
		}
		if !badge.ProgressState.IsLoaded() {
			if err := badge.LoadProgress(sess); err != nil {
				return nil, err
			}
			utils.Log.Debug("Loaded progress for ", badge.Name)
		}
		bars = append(bars, SchemeBar{
			Label:      part.Name,
			Completion: Summary(badge.Progress, len(badge.Parts)),
		})
	}
	return bars, nil
}
