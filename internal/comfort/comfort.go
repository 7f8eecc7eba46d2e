// Package comfort builds the supportive message returned with a submission
// and with an inbox lookup.
package comfort

import (
	"fmt"
	"strings"
)

const paragraphSeparator = "\n\n"

// Message is a titled block of paragraphs with optional practical resources.
type Message struct {
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Resources []string `json:"resources,omitempty"`
}

type tagRule struct {
	keyword   string
	paragraph string
	resources []string
}

var contextRules = []tagRule{
	{keyword: "school", paragraph: "You have the right to learn in a safe environment."},
	{keyword: "family", paragraph: "Family relationships should be sources of safety, not harm."},
	{keyword: "healthcare", paragraph: "Healthcare providers should be trusted allies, never sources of harm."},
	{keyword: "workplace", paragraph: "Professional environments should respect your dignity and boundaries."},
	{keyword: "online", paragraph: "Online spaces should be safe for everyone."},
	{keyword: "public", paragraph: "You have the right to exist safely in public spaces."},
}

var riskRules = []tagRule{
	{
		keyword:   "blackmail",
		paragraph: "If someone is threatening you: what they're doing is illegal. You are not at fault.",
		resources: []string{
			"Document everything safely",
			"Consider reaching out to a trusted adult or authority",
		},
	},
	{
		keyword:   "physical",
		paragraph: "Your physical safety is the top priority. Please reach out to local emergency services if you're in immediate danger.",
	},
	{keyword: "ongoing", paragraph: "If this is still happening, you don't have to face it alone."},
	{
		keyword:   "retaliation",
		paragraph: "Fear of retaliation is valid and common. Taking steps to protect yourself is strength, not weakness.",
	},
}

// ForSubmission assembles the message shown right after a story is stored.
// Tags match a rule when they contain its keyword, ignoring case.
func ForSubmission(contextTags, riskFlags []string, allowNotes bool) Message {
	paragraphs := []string{
		"Thank you for trusting us with your story.",
		"What happened is not okay, and you deserve safety and support.",
	}
	var resources []string

	for _, rule := range contextRules {
		if hasKeyword(contextTags, rule.keyword) {
			paragraphs = append(paragraphs, rule.paragraph)
		}
	}
	for _, rule := range riskRules {
		if hasKeyword(riskFlags, rule.keyword) {
			paragraphs = append(paragraphs, rule.paragraph)
			resources = append(resources, rule.resources...)
		}
	}
	if allowNotes {
		paragraphs = append(paragraphs,
			"You've opted to receive Lantern Notes - supportive messages from others who care.",
			"Come back with your inbox code anytime to view them.",
		)
	}

	return Message{
		Title:     "You're Not Alone",
		Message:   strings.Join(paragraphs, paragraphSeparator),
		Resources: resources,
	}
}

// ForInbox greets the owner of an inbox holding noteCount approved notes.
func ForInbox(noteCount int) Message {
	if noteCount <= 0 {
		return Message{
			Title:   "Your Inbox",
			Message: "No notes have been approved yet. Check back soon - someone may leave you a message of support.",
		}
	}
	noun := "notes"
	if noteCount == 1 {
		noun = "note"
	}
	return Message{
		Title:   "Messages for You",
		Message: fmt.Sprintf("You have %d %s from people who want you to know you're not alone.", noteCount, noun),
	}
}

func hasKeyword(tags []string, keyword string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), keyword) {
			return true
		}
	}
	return false
}
