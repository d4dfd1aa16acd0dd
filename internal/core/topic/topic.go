// Package topic maps chat routing intent to MQTT topic names and back.
//
// Two topic shapes exist on a channel:
//
//	/<channel>/<broadcastLabel>       broadcast, fan-out to every subscriber
//	/<channel>/<sender>/<recipient>   direct, one per ordered pair
//
// The middle segment of a direct topic is always the sender.
package topic

import (
	"errors"
	"fmt"
	"strings"
)

// Separator splits topic levels.
const Separator = "/"

// Filter wildcards used in subscriptions.
const (
	SingleLevel = "+"
	MultiLevel  = "#"
)

// ErrMalformedTopic is returned when a topic does not match the chat grammar.
var ErrMalformedTopic = errors.New("malformed topic")

// Kind distinguishes broadcast topics from direct ones.
type Kind int

const (
	KindBroadcast Kind = iota
	KindDirect
)

func (k Kind) String() string {
	switch k {
	case KindBroadcast:
		return "broadcast"
	case KindDirect:
		return "direct"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Topic is a decoded chat topic. Label is set for broadcast topics, From and To
// for direct topics.
type Topic struct {
	Kind    Kind
	Channel string
	Label   string
	From    string
	To      string
}

// IsBroadcast reports whether the topic fans out to the whole channel.
func (t Topic) IsBroadcast() bool {
	return t.Kind == KindBroadcast
}

// String re-encodes the topic in wire form.
func (t Topic) String() string {
	if t.Kind == KindBroadcast {
		return Separator + t.Channel + Separator + t.Label
	}
	return Separator + t.Channel + Separator + t.From + Separator + t.To
}

// ValidateIdentity checks that s can be used as a single topic level: non-empty,
// no separator and no filter wildcards.
func ValidateIdentity(s string) error {
	if s == "" {
		return fmt.Errorf("cannot be empty")
	}
	if strings.Contains(s, Separator) {
		return fmt.Errorf("%q must not contain %q", s, Separator)
	}
	if strings.ContainsAny(s, SingleLevel+MultiLevel) {
		return fmt.Errorf("%q must not contain wildcard characters", s)
	}
	return nil
}

// EncodeSend returns the topic a message from sender to recipient is published on.
// Sending to broadcastLabel yields the channel's broadcast topic.
//
// Invalid identities are a programming error and cause a panic; callers validate
// user input with ValidateIdentity first.
func EncodeSend(channel, sender, recipient, broadcastLabel string) string {
	mustIdentity("channel", channel)
	mustIdentity("recipient", recipient)

	if recipient == broadcastLabel {
		return Topic{Kind: KindBroadcast, Channel: channel, Label: broadcastLabel}.String()
	}

	mustIdentity("sender", sender)
	return Topic{Kind: KindDirect, Channel: channel, From: sender, To: recipient}.String()
}

// Subscriptions returns the two filters a user listens on: the broadcast topic
// and every direct topic addressed to username.
func Subscriptions(channel, username, broadcastLabel string) []string {
	mustIdentity("channel", channel)
	mustIdentity("username", username)

	return []string{
		Separator + channel + Separator + broadcastLabel,
		Separator + channel + Separator + SingleLevel + Separator + username,
	}
}

// Parse decodes a wire topic. A two level topic is only valid when its label is
// broadcastLabel; a three level topic is always direct.
func Parse(raw, broadcastLabel string) (Topic, error) {
	rest, ok := strings.CutPrefix(raw, Separator)
	if !ok {
		return Topic{}, fmt.Errorf("%w: %q has no leading %q", ErrMalformedTopic, raw, Separator)
	}

	parts := strings.Split(rest, Separator)
	for _, p := range parts {
		if p == "" {
			return Topic{}, fmt.Errorf("%w: %q has an empty level", ErrMalformedTopic, raw)
		}
	}

	switch len(parts) {
	case 2:
		if parts[1] != broadcastLabel {
			return Topic{}, fmt.Errorf("%w: %q is neither broadcast nor direct", ErrMalformedTopic, raw)
		}
		return Topic{Kind: KindBroadcast, Channel: parts[0], Label: parts[1]}, nil
	case 3:
		return Topic{Kind: KindDirect, Channel: parts[0], From: parts[1], To: parts[2]}, nil
	default:
		return Topic{}, fmt.Errorf("%w: %q has %d levels", ErrMalformedTopic, raw, len(parts))
	}
}

func mustIdentity(field, s string) {
	if err := ValidateIdentity(s); err != nil {
		panic(fmt.Sprintf("topic: invalid %s: %v", field, err))
	}
}
