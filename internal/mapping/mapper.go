// Package mapping turns raw Front conversations into normalized migration
// items. Everything here is pure; no I/O happens below this line.
package mapping

import (
	"strings"
	"time"

	"github.com/joshsymonds/frontporter/internal/front"
)

// Namespace is the label prefix all migrated tags are nested under.
const Namespace = "Front"

// tagMarker is the prefix Front uses for private tags; it is stripped before
// nesting so private and shared tags with the same name converge.
const tagMarker = "!"

// Status labels mirror the conversation's archive state in Gmail. Every
// applied item ends up with exactly one of the two.
const (
	StatusLabelArchived = "Front/Status/Archived"
	StatusLabelInbox    = "Front/Status/Inbox"
)

// reserved mirrors the Gmail label names that cannot be created by users;
// a sanitized tag must never collide with one of these. IMPORTANT is absent
// on purpose: Gmail accepts a user label nested as Front/Important, and the
// nested form is what migrated tags should converge to.
var reserved = map[string]struct{}{
	"inbox":               {},
	"spam":                {},
	"trash":               {},
	"unread":              {},
	"starred":             {},
	"sent":                {},
	"draft":               {},
	"chat":                {},
	"snoozed":             {},
	"category_personal":   {},
	"category_social":     {},
	"category_promotions": {},
	"category_updates":    {},
	"category_forums":     {},
}

// Item is the in-memory, per-conversation migration unit. Created here,
// consumed by the orchestrator within one run, never persisted.
type Item struct {
	SourceID     string
	Subject      string
	Labels       []string
	Archived     bool
	MessageID    string
	Participants []string // retained for the audit trail, not used for matching
	CreatedAt    time.Time
}

// SanitizeLabel normalizes a Front tag name into a Gmail-safe label name.
// The function is idempotent: feeding its output back in is a no-op.
func SanitizeLabel(raw string) string {
	name := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(name, Namespace+"/"); ok {
		name = rest
	}
	name = strings.NewReplacer("/", "-", "\\", "-").Replace(name)
	name = strings.TrimSpace(strings.TrimLeft(name, tagMarker))
	if name == "" {
		return ""
	}
	if _, ok := reserved[strings.ToLower(name)]; ok {
		return Namespace + "-" + name
	}
	if strings.HasPrefix(name, Namespace+"-") {
		return name
	}
	return Namespace + "/" + name
}

// Map derives the migration item for one conversation.
func Map(conv front.Conversation) Item {
	item := Item{
		SourceID:  conv.ID,
		Subject:   conv.Subject,
		Archived:  conv.Status == front.StatusArchived,
		MessageID: extractMessageID(conv.Messages),
		CreatedAt: epochToTime(conv.CreatedAt),
	}

	seen := make(map[string]struct{}, len(conv.Tags))
	for _, tag := range conv.Tags {
		label := SanitizeLabel(tag.Name)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		item.Labels = append(item.Labels, label)
	}

	seenAddr := map[string]struct{}{}
	for _, msg := range conv.Messages {
		for _, rcpt := range msg.Recipients {
			addr := strings.TrimSpace(rcpt.Handle)
			if addr == "" {
				continue
			}
			key := strings.ToLower(addr)
			if _, dup := seenAddr[key]; dup {
				continue
			}
			seenAddr[key] = struct{}{}
			item.Participants = append(item.Participants, addr)
		}
	}
	return item
}

// extractMessageID returns the first email-channel Message-ID, bare of its
// angle brackets. Identifiers are never synthesized; absence routes the item
// to a skipped outcome downstream.
func extractMessageID(msgs []front.Message) string {
	for _, msg := range msgs {
		if msg.Type != front.MessageTypeEmail {
			continue
		}
		id := strings.TrimSpace(msg.MessageID())
		if id == "" {
			continue
		}
		id = strings.TrimPrefix(id, "<")
		id = strings.TrimSuffix(id, ">")
		return id
	}
	return ""
}

func epochToTime(sec float64) time.Time {
	whole := int64(sec)
	frac := int64((sec - float64(whole)) * 1e9)
	return time.Unix(whole, frac).UTC()
}
