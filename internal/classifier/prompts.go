package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/maildigest/pkg/models"
)

const (
	singleBodyLimit = 3000
	threadBodyLimit = 2000
)

// SystemPrompt is the categorization system prompt.
const SystemPrompt = `You are an expert email triage assistant. Your job is to analyze emails and categorize them to help a busy professional manage their inbox efficiently.

For each email thread, you must provide:
1. A category: one of "Summary Only", "Action Eventually", or "Action Immediately"
2. A priority score from 1 (lowest) to 10 (highest)
3. A brief summary (1-2 sentences)
4. A short reasoning for your categorization choice

Category definitions:
- "Summary Only": Newsletters, notifications, automated messages, FYI emails that require no response or action. Priority typically 1-3.
- "Action Eventually": Emails that need a response or action but are not time-sensitive. Can be addressed within days. Priority typically 3-6.
- "Action Immediately": Emails requiring urgent attention: time-sensitive requests, important meetings, critical issues, messages from key stakeholders. Priority typically 7-10.

Priority scoring guidelines:
- 1-2: Completely ignorable (marketing, spam-like)
- 3-4: Low importance, informational
- 5-6: Moderate importance, needs attention soon
- 7-8: High importance, time-sensitive
- 9-10: Critical, requires immediate action

For multi-message threads, judge the thread as a whole but weigh the most recent message most heavily.`

const guidelinesHeader = `

--- USER-DEFINED CATEGORIZATION GUIDELINES ---

The following guidelines were provided by the user. They OVERRIDE the defaults above when there is a conflict. Follow them strictly, especially any sender overrides or custom rules.

`

const categorizationInstructions = `Call the submit_categorizations tool with one entry per thread. If you cannot call tools, respond with only a JSON object containing a "categorizations" array. Each element must have:
- "email_id": the id attribute of the email or thread element
- "category": one of "Summary Only", "Action Eventually", "Action Immediately"
- "priority": integer 1-10
- "summary": brief 1-2 sentence summary
- "reasoning": short explanation for the categorization`

const draftSystemPromptTemplate = `You are an assistant that prepares reply drafts for the owner of the mailbox %s.

For each email thread decide whether the owner owes a reply. A thread is awaiting a reply only when its most recent message was sent by someone other than the owner AND that message explicitly asks the owner for a response, decision, or action. Automated messages, FYIs, and threads where the owner sent the last message are not awaiting a reply.

When a thread is awaiting a reply, write a concise, professional draft in the owner's voice that directly addresses the request. Do not invent facts, commitments, or dates the owner has not stated; use a short placeholder such as [confirm time] instead. When a thread is not awaiting a reply, set suggested_reply to null.`

const draftInstructions = `Call the submit_drafts tool with one entry per thread. If you cannot call tools, respond with only a JSON object containing a "drafts" array. Each element must have:
- "thread_id": the id attribute of the email or thread element
- "awaiting_reply": true or false
- "suggested_reply": the draft text when awaiting_reply is true, otherwise null`

// BuildSystemPrompt appends optional user guidelines to SystemPrompt.
func BuildSystemPrompt(guidelines string) string {
	guidelines = strings.TrimSpace(guidelines)
	if guidelines == "" {
		return SystemPrompt
	}
	return SystemPrompt + guidelinesHeader + guidelines
}

// BuildDraftSystemPrompt names the mailbox owner in the draft system prompt.
func BuildDraftSystemPrompt(userEmail string) string {
	return fmt.Sprintf(draftSystemPromptTemplate, userEmail)
}

// BuildCategorizationPrompt serializes a batch for the categorize call.
func BuildCategorizationPrompt(convs []models.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %d email threads and categorize each one.\n\n", len(convs))
	writeConversations(&b, convs)
	b.WriteString("\n\n")
	b.WriteString(categorizationInstructions)
	return b.String()
}

// BuildDraftPrompt serializes a batch for the draft call.
func BuildDraftPrompt(convs []models.Conversation, userEmail string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The mailbox owner is %s. Review the following %d email threads and decide, for each, whether the owner needs to reply.\n\n", userEmail, len(convs))
	writeConversations(&b, convs)
	b.WriteString("\n\n")
	b.WriteString(draftInstructions)
	return b.String()
}

func writeConversations(b *strings.Builder, convs []models.Conversation) {
	for i, conv := range convs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(ConversationXML(conv))
	}
}

// ConversationXML renders one conversation as an <email> element, or as a
// <thread> element when it holds more than one message.
func ConversationXML(conv models.Conversation) string {
	var b strings.Builder
	if !conv.IsThread() {
		var msg models.Message
		if len(conv.Messages) > 0 {
			msg = conv.Messages[0]
		}
		fmt.Fprintf(&b, "<email id=\"%s\">\n", conv.ID)
		fmt.Fprintf(&b, "<from>%s</from>\n", msg.Sender)
		fmt.Fprintf(&b, "<subject>%s</subject>\n", msg.Subject)
		fmt.Fprintf(&b, "<date>%s</date>\n", msg.Date.Format(time.RFC3339))
		fmt.Fprintf(&b, "<body>\n%s\n</body>\n", models.Truncate(msg.Text(), singleBodyLimit))
		b.WriteString("</email>")
		return b.String()
	}

	fmt.Fprintf(&b, "<thread id=\"%s\" message_count=\"%d\">\n", conv.ID, conv.MessageCount)
	fmt.Fprintf(&b, "<subject>%s</subject>\n", conv.Subject)
	fmt.Fprintf(&b, "<participants>%s</participants>\n", strings.Join(conv.Participants, ", "))
	for _, msg := range conv.Messages {
		b.WriteString("<message>\n")
		fmt.Fprintf(&b, "<from>%s</from>\n", msg.Sender)
		fmt.Fprintf(&b, "<date>%s</date>\n", msg.Date.Format(time.RFC3339))
		fmt.Fprintf(&b, "<body>\n%s\n</body>\n", models.Truncate(msg.Text(), threadBodyLimit))
		b.WriteString("</message>\n")
	}
	b.WriteString("</thread>")
	return b.String()
}
