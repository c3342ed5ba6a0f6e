// Package push decodes push-message payloads into displayable
// notifications and routes notification clicks back into the
// application: focus a window already showing the app, or open a new
// one at the target URL.
package push

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Default display values merged under whatever the payload carries.
const (
	DefaultTitle = "Pulsar"
	DefaultIcon  = "/icons/icon-192x192.png"
	DefaultBadge = "/icons/icon-192x192.png"
	DefaultURL   = "/"
)

// Payload is the expected push message shape. Every field is optional;
// Decode fills the blanks with defaults.
type Payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Icon  string      `json:"icon"`
	Badge string      `json:"badge"`
	Tag   string      `json:"tag"`
	Data  PayloadData `json:"data"`
}

// PayloadData carries the click-through target.
type PayloadData struct {
	URL string `json:"url"`
}

// Decode parses a raw push message. Valid JSON is merged over defaults;
// anything else is treated as a plain-text body so a malformed payload
// still produces a notification rather than being dropped. A payload
// without a tag gets a generated one so unrelated pushes don't coalesce.
func Decode(raw []byte) Payload {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		p = Payload{Body: string(raw)}
	}

	if p.Title == "" {
		p.Title = DefaultTitle
	}
	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	if p.Badge == "" {
		p.Badge = DefaultBadge
	}
	if p.Tag == "" {
		p.Tag = uuid.NewString()
	}
	if p.Data.URL == "" {
		p.Data.URL = DefaultURL
	}
	return p
}

// Notification actions exposed to the user.
const (
	ActionOpen    = "open"
	ActionDismiss = "dismiss"
)

// Action is one of the two buttons on a displayed notification.
type Action struct {
	ID    string `json:"action"`
	Title string `json:"title"`
}

// Notification is the displayable form of a push payload.
type Notification struct {
	Title              string
	Body               string
	Icon               string
	Badge              string
	Tag                string
	TargetURL          string
	Actions            []Action
	RequireInteraction bool // always false: notifications auto-dismiss
}

// Notification converts a decoded payload into its display form with the
// fixed open/dismiss action pair.
func (p Payload) Notification() Notification {
	return Notification{
		Title:     p.Title,
		Body:      p.Body,
		Icon:      p.Icon,
		Badge:     p.Badge,
		Tag:       p.Tag,
		TargetURL: p.Data.URL,
		Actions: []Action{
			{ID: ActionOpen, Title: "Open"},
			{ID: ActionDismiss, Title: "Dismiss"},
		},
	}
}
