package usecase

import (
	"regexp"
	"strings"

	"notify-backend/internal/notification/domain"
)

// assignmentRole pulls the role out of reminders such as
// "You have been assigned to serve as Greeter on Sunday".
var assignmentRole = regexp.MustCompile(`(?i)assigned to (?:serve as |the )?(.+?)(?: on | for |[.!]|$)`)

const (
	titleAssignment     = "Volunteer Assignment"
	titlePrivateMessage = "New Private Message"
	titleNotification   = "New Notification"
)

// Title builds the headline shown in pushes and single-item digests.
func Title(contentType, message string) string {
	switch contentType {
	case domain.ContentTypeAssignment:
		if m := assignmentRole.FindStringSubmatch(message); len(m) == 2 {
			if role := strings.TrimSpace(m[1]); role != "" {
				return titleAssignment + ": " + role
			}
		}
		return titleAssignment
	case domain.ContentTypePrivateMessage:
		return titlePrivateMessage
	default:
		return titleNotification
	}
}

// Body trims the message down to something a lock screen can show.
func Body(message string) string {
	const maxLen = 178
	message = strings.TrimSpace(message)
	if r := []rune(message); len(r) > maxLen {
		return string(r[:maxLen-3]) + "..."
	}
	return message
}

// ConversationMessage is the text of a "new message" notification.
func ConversationMessage(title string) string {
	if title = strings.TrimSpace(title); title == "" {
		return "New message"
	}
	return "New message: " + title
}
