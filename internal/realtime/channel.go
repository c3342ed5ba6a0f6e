// Package realtime implements the delivery client that owns the live
// connection to the notification backend. It translates low-level
// transport frames into a typed publish/subscribe interface and manages
// reconnection with capped exponential backoff, distinguishing
// authentication failures (not retryable) from transient network
// failures (retryable).
package realtime

// Channel is a named category of application-level event. The set is
// closed: free-form channel names are not accepted.
type Channel string

const (
	ChannelConnect              Channel = "connect"
	ChannelDisconnect           Channel = "disconnect"
	ChannelNewPost              Channel = "newPost"
	ChannelPostUpdate           Channel = "postUpdate"
	ChannelNotification         Channel = "notification"
	ChannelRealTimeNotification Channel = "realTimeNotification"
	ChannelAuthError            Channel = "authError"
)

// State is the connection state of the client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
