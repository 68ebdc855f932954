// Package notify fans out group events to connected clients. Delivery is
// fire-and-forget: a subscriber that is not connected misses the event.
package notify

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

const (
	EventGroupInvitation = "group_invitation"
	EventMemberJoined    = "member_joined"
)

type Event struct {
	Type         string    `json:"type"`
	GroupID      string    `json:"groupId,omitempty"`
	GroupName    string    `json:"groupName,omitempty"`
	MembershipID string    `json:"membershipId,omitempty"`
	UserID       string    `json:"userId,omitempty"`
	At           time.Time `json:"at"`
}

func UserChannel(id uuid.UUID) string {
	return "user:" + id.String()
}

func GroupChannel(id uuid.UUID) string {
	return "group:" + id.String()
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

// Noop drops every event. It is used when Redis is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, Event) error { return nil }
