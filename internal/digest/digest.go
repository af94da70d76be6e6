// Package digest assembles the final report structure.
package digest

import (
	"sort"
	"time"

	"github.com/maildigest/pkg/models"
)

// Build partitions cats into the three category buckets, each sorted by
// priority descending with ties in input order, and totals conversations
// and messages. groups is carried through as is.
func Build(cats []models.CategorizedConversation, groups []models.DigestGroup, now time.Time) models.Digest {
	d := models.Digest{
		GeneratedAt:        now.UTC(),
		TotalConversations: len(cats),
		Groups:             groups,
	}

	for _, cc := range cats {
		d.TotalMessages += cc.Conversation.MessageCount
		switch cc.Classification.Category {
		case models.CategoryActionImmediately:
			d.ActionImmediately = append(d.ActionImmediately, cc)
		case models.CategoryActionEventually:
			d.ActionEventually = append(d.ActionEventually, cc)
		default:
			d.SummaryOnly = append(d.SummaryOnly, cc)
		}
	}

	byPriority(d.ActionImmediately)
	byPriority(d.ActionEventually)
	byPriority(d.SummaryOnly)
	return d
}

func byPriority(cats []models.CategorizedConversation) {
	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].Classification.Priority > cats[j].Classification.Priority
	})
}

// CountByCategory maps every category label to its conversation count. An
// empty digest yields an empty map.
func CountByCategory(d models.Digest) map[string]int {
	counts := map[string]int{}
	if d.IsEmpty() {
		return counts
	}
	for _, c := range models.Categories {
		counts[string(c)] = len(d.ByCategory(c))
	}
	return counts
}
