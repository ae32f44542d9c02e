package engine

import (
	"context"

	"github.com/quailyquaily/listkeeper/authz"
	"github.com/quailyquaily/listkeeper/trigger"
)

// Transport is the capability surface of the external messaging
// collaborator. The core never sees transport-native envelopes; the
// gateway adapter normalizes them into the shapes below.
type Transport interface {
	Send(ctx context.Context, conversationID string, req SendRequest) error
	Roster(ctx context.Context, conversationID string) (authz.Roster, error)
}

// Attachment is the tagged variant an adapter produces from whatever
// media encoding the transport uses.
type Attachment struct {
	Kind     trigger.Kind
	MimeType string
	Data     []byte
}

// Message is one normalized inbound chat message.
type Message struct {
	ConversationID   string
	ConversationName string
	ActorID          string
	IsGroup          bool
	Body             string
	QuotedBody       string
	Attachment       *Attachment
}

type MembershipAction string

const (
	MembershipJoin  MembershipAction = "join"
	MembershipLeave MembershipAction = "leave"
)

// Membership is one normalized membership-change event.
type Membership struct {
	ConversationID   string
	ConversationName string
	ActorIDs         []string
	Action           MembershipAction
}

// SendRequest is one outbound payload handed to the transport.
type SendRequest struct {
	Text      string
	Mentions  []string
	MediaKind trigger.Kind
	MediaRef  string
	MimeType  string
	Caption   string
}
