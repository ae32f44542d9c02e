// Package placeholder expands the symbolic tokens @user, @group, @date
// and @time inside reply templates at send time.
package placeholder

import (
	"regexp"
	"strings"
	"time"
)

// GroupFallback is substituted for @group when the conversation is not
// a group or its display name is unavailable.
const GroupFallback = "this conversation"

// Context carries everything a template may reference.
type Context struct {
	ActorID          string
	ConversationName string
	Now              time.Time
}

var (
	userToken  = regexp.MustCompile(`(?i)@user`)
	groupToken = regexp.MustCompile(`(?i)@group`)
	dateToken  = regexp.MustCompile(`(?i)@date`)
	timeToken  = regexp.MustCompile(`(?i)@time`)
)

// Render substitutes every token occurrence, case-insensitively.
// Unknown tokens pass through verbatim; an empty template is returned
// unchanged.
func Render(template string, ctx Context) string {
	if template == "" {
		return template
	}
	out := userToken.ReplaceAllLiteralString(template, Mention(ctx.ActorID))
	out = groupToken.ReplaceAllLiteralString(out, groupName(ctx.ConversationName))
	out = dateToken.ReplaceAllLiteralString(out, ctx.Now.Format("02/01/2006"))
	out = timeToken.ReplaceAllLiteralString(out, ctx.Now.Format("15:04:05"))
	return out
}

// Mention renders an actor id in the form the transport recognizes as a
// mention: "@" plus the local part before the id's domain separator.
func Mention(actorID string) string {
	return "@" + LocalPart(actorID)
}

func LocalPart(actorID string) string {
	actorID = strings.TrimSpace(actorID)
	if at := strings.IndexByte(actorID, '@'); at >= 0 {
		return actorID[:at]
	}
	return actorID
}

func groupName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return GroupFallback
	}
	return name
}
