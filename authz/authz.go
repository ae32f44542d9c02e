// Package authz decides whether an actor may run mutation commands in
// a conversation, based on the live group roster.
package authz

import "strings"

// Member is one roster entry as reported by the transport.
type Member struct {
	ActorID string `json:"actor_id"`
	IsAdmin bool   `json:"is_admin"`
}

// Roster is the live membership list of a group conversation. It is
// fetched at use time and never persisted.
type Roster []Member

// IsAdmin reports whether actorID appears in the roster with the admin
// flag set. An empty roster (including a failed fetch mapped to empty)
// always fails closed.
func (r Roster) IsAdmin(actorID string) bool {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return false
	}
	for _, member := range r {
		if member.ActorID == actorID {
			return member.IsAdmin
		}
	}
	return false
}

// ActorIDs returns every member id, in roster order.
func (r Roster) ActorIDs() []string {
	out := make([]string, 0, len(r))
	for _, member := range r {
		out = append(out, member.ActorID)
	}
	return out
}
