package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Frame is the wire envelope: a type tag plus a JSON payload.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Wire frame types.
const (
	frameJoin                 = "join"
	frameLeave                = "leave"
	frameNewPost              = "new_post"
	framePostUpdate           = "post_update"
	frameNotification         = "notification"
	frameRealTimeNotification = "realtime_notification"
)

// NewPost announces freshly published content.
type NewPost struct {
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// PostUpdate carries refreshed interaction counts for an existing post.
type PostUpdate struct {
	PostID   string `json:"post_id"`
	Likes    int    `json:"likes"`
	Reposts  int    `json:"reposts"`
	Comments int    `json:"comments"`
}

// Notification is a direct notification addressed to the session's user.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ActorID   string    `json:"actor_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// RealTimeNotification is a broadcast meant for immediate display.
type RealTimeNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// decodeFrame validates an inbound frame once at ingestion, mapping it
// to its application channel and a typed payload with optional fields
// defaulted. Unknown frame types return an error and are dropped by the
// caller.
func decodeFrame(f Frame) (Channel, any, error) {
	switch f.Type {
	case frameNewPost:
		var p NewPost
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return "", nil, fmt.Errorf("decode %s payload: %w", f.Type, err)
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		return ChannelNewPost, p, nil

	case framePostUpdate:
		var p PostUpdate
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return "", nil, fmt.Errorf("decode %s payload: %w", f.Type, err)
		}
		return ChannelPostUpdate, p, nil

	case frameNotification:
		var p Notification
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return "", nil, fmt.Errorf("decode %s payload: %w", f.Type, err)
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		return ChannelNotification, p, nil

	case frameRealTimeNotification:
		var p RealTimeNotification
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return "", nil, fmt.Errorf("decode %s payload: %w", f.Type, err)
		}
		if p.URL == "" {
			p.URL = "/"
		}
		return ChannelRealTimeNotification, p, nil
	}

	return "", nil, fmt.Errorf("unknown frame type %q", f.Type)
}
