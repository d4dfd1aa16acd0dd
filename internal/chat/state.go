// Package chat routes transport events to transcripts and owns the connection
// lifecycle of a chat client.
package chat

import "errors"

// Sentinel errors surfaced by the router and session.
var (
	ErrNotConnected = errors.New("not connected")
	ErrNoHistory    = errors.New("no history")
	ErrTranscriptIO = errors.New("transcript i/o failure")
)

// State is the connection state observed by the router.
type State int32

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
