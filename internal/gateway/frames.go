package gateway

import "time"

// Frame types on the bridge socket. Inbound frames (bridge to bot):
// message, membership, roster_result, pong. Outbound frames (bot to
// bridge): send, roster, ping.
const (
	frameTypeMessage      = "message"
	frameTypeMembership   = "membership"
	frameTypeRosterResult = "roster_result"
	frameTypePong         = "pong"
	frameTypeSend         = "send"
	frameTypeRoster       = "roster"
	frameTypePing         = "ping"
)

// frame is the single envelope both directions share; Type selects
// which payload field is populated. ID correlates a roster request
// with its roster_result.
type frame struct {
	Type       string           `json:"type"`
	ID         string           `json:"id,omitempty"`
	Error      string           `json:"error,omitempty"`
	Message    *messageFrame    `json:"message,omitempty"`
	Membership *membershipFrame `json:"membership,omitempty"`
	Roster     *rosterFrame     `json:"roster,omitempty"`
	Send       *sendFrame       `json:"send,omitempty"`
}

type messageFrame struct {
	ConversationID   string           `json:"conversation_id"`
	ConversationName string           `json:"conversation_name,omitempty"`
	ActorID          string           `json:"actor_id"`
	IsGroup          bool             `json:"is_group"`
	Body             string           `json:"body"`
	QuotedBody       string           `json:"quoted_body,omitempty"`
	Attachment       *attachmentFrame `json:"attachment,omitempty"`
	SentAt           time.Time        `json:"sent_at,omitempty"`
}

type attachmentFrame struct {
	Kind     string `json:"kind"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type membershipFrame struct {
	ConversationID   string   `json:"conversation_id"`
	ConversationName string   `json:"conversation_name,omitempty"`
	ActorIDs         []string `json:"actor_ids"`
	Action           string   `json:"action"`
}

type rosterFrame struct {
	ConversationID string        `json:"conversation_id"`
	Members        []rosterEntry `json:"members,omitempty"`
}

type rosterEntry struct {
	ActorID string `json:"actor_id"`
	IsAdmin bool   `json:"is_admin"`
}

type sendFrame struct {
	ConversationID string   `json:"conversation_id"`
	Text           string   `json:"text,omitempty"`
	Mentions       []string `json:"mentions,omitempty"`
	MediaKind      string   `json:"media_kind,omitempty"`
	MimeType       string   `json:"mime_type,omitempty"`
	MediaData      []byte   `json:"media_data,omitempty"`
	Caption        string   `json:"caption,omitempty"`
}
