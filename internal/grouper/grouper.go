// Package grouper clusters categorized conversations for display.
package grouper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maildigest/pkg/models"
)

const unknownDomain = "unknown"

// Group clusters conversations by the sender domain of their first message.
// Domains with several conversations become one group, sorted by priority
// descending; a lone conversation becomes its own group labeled with its
// subject. Groups are ordered by highest member priority, descending, with
// ties kept in first-appearance order.
func Group(cats []models.CategorizedConversation) []models.DigestGroup {
	if len(cats) == 0 {
		return nil
	}

	var domains []string
	byDomain := make(map[string][]models.CategorizedConversation)
	for _, cc := range cats {
		d := Domain(cc.Conversation.FirstSender())
		if _, ok := byDomain[d]; !ok {
			domains = append(domains, d)
		}
		byDomain[d] = append(byDomain[d], cc)
	}

	groups := make([]models.DigestGroup, 0, len(domains))
	for _, d := range domains {
		members := byDomain[d]
		if len(members) == 1 {
			groups = append(groups, singleton(members[0]))
			continue
		}
		groups = append(groups, domainGroup(d, members))
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].HighestPriority > groups[j].HighestPriority
	})
	return groups
}

// Domain returns the lowercased domain of address, or "unknown".
func Domain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return unknownDomain
	}
	return strings.ToLower(strings.TrimSpace(address[at+1:]))
}

func domainGroup(domain string, members []models.CategorizedConversation) models.DigestGroup {
	sorted := make([]models.CategorizedConversation, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Classification.Priority > sorted[j].Classification.Priority
	})
	return models.DigestGroup{
		Key:             "domain:" + domain,
		Label:           fmt.Sprintf("From: %s (%d conversations)", domain, len(sorted)),
		Conversations:   sorted,
		HighestPriority: sorted[0].Classification.Priority,
	}
}

func singleton(cc models.CategorizedConversation) models.DigestGroup {
	label := cc.Conversation.Subject
	if cc.Conversation.IsThread() {
		label = fmt.Sprintf("%s (%d messages)", label, cc.Conversation.MessageCount)
	}
	return models.DigestGroup{
		Key:             cc.Conversation.ID,
		Label:           label,
		Conversations:   []models.CategorizedConversation{cc},
		HighestPriority: cc.Classification.Priority,
	}
}

// Flatten returns every conversation in groups, in group order.
func Flatten(groups []models.DigestGroup) []models.CategorizedConversation {
	var out []models.CategorizedConversation
	for _, g := range groups {
		out = append(out, g.Conversations...)
	}
	return out
}
