package gmail

import (
	"sort"

	"github.com/maildigest/pkg/models"
)

// Consolidate groups messages by conversation id. Messages within a
// conversation are ordered oldest first; conversations are ordered by their
// latest message, newest first.
func Consolidate(messages []models.Message) []models.Conversation {
	var order []string
	byID := make(map[string][]models.Message)
	for _, msg := range messages {
		if _, ok := byID[msg.ConversationID]; !ok {
			order = append(order, msg.ConversationID)
		}
		byID[msg.ConversationID] = append(byID[msg.ConversationID], msg)
	}

	convs := make([]models.Conversation, 0, len(order))
	for _, id := range order {
		convs = append(convs, models.NewConversation(id, byID[id]))
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LatestDate.After(convs[j].LatestDate)
	})
	return convs
}
