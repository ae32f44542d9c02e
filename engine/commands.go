package engine

import (
	"context"
	"strings"

	"github.com/quailyquaily/listkeeper/authz"
	"github.com/quailyquaily/listkeeper/trigger"
)

type commandClass int

const (
	// classQuery commands are open to every member.
	classQuery commandClass = iota
	// classMutation commands change state and require group-admin
	// standing; they are also the only commands that reach the audit
	// log.
	classMutation
)

const (
	outcomeOK         = "ok"
	outcomeDenied     = "denied"
	outcomeValidation = "validation"
	outcomeNotFound   = "not_found"
	outcomeError      = "error"
)

type handlerResult struct {
	reply   string
	keyword string
	outcome string
	// after runs once the reply has been sent. Only shutdown uses it.
	after func()
}

type command struct {
	name  string
	class commandClass
	run   func(ctx context.Context, e *Engine, msg *Message, args string, roster authz.Roster) (handlerResult, error)
}

func newCommandRegistry() map[string]*command {
	registry := map[string]*command{}
	add := func(cmd *command, aliases ...string) {
		registry[cmd.name] = cmd
		for _, alias := range aliases {
			registry[alias] = cmd
		}
	}
	add(&command{name: "addlist", class: classMutation, run: runAddlist})
	add(&command{name: "updatelist", class: classMutation, run: runUpdatelist})
	add(&command{name: "dellist", class: classMutation, run: runDellist})
	add(&command{name: "listall", class: classQuery, run: runListall})
	add(&command{name: "hidetag", class: classMutation, run: runHidetag}, "h")
	add(&command{name: "setwelcome", class: classMutation, run: runSetwelcome})
	add(&command{name: "setbye", class: classMutation, run: runSetbye})
	add(&command{name: "open", class: classMutation, run: runOpen}, "buka")
	add(&command{name: "close", class: classMutation, run: runClose}, "tutup")
	add(&command{name: "shutdown", class: classMutation, run: runShutdown})
	return registry
}

func runAddlist(ctx context.Context, e *Engine, msg *Message, args string, _ authz.Roster) (handlerResult, error) {
	keyword, content := splitKeywordContent(args)
	if keyword == "" {
		return handlerResult{reply: usageReply(e.prefix, "addlist", "<keyword> || <content>"), outcome: outcomeValidation}, nil
	}
	normalized := trigger.NormalizeKeyword(keyword)
	if _, exists, err := e.triggers.Lookup(ctx, msg.ConversationID, normalized); err != nil {
		return handlerResult{keyword: normalized}, err
	} else if exists {
		return handlerResult{reply: existsReply(normalized, e.prefix), keyword: normalized, outcome: outcomeValidation}, nil
	}
	item, validation, err := e.buildItem(ctx, msg, normalized, content)
	if err != nil {
		return handlerResult{keyword: normalized}, err
	}
	if validation != "" {
		return handlerResult{reply: validation, keyword: normalized, outcome: outcomeValidation}, nil
	}
	if err := e.triggers.Upsert(ctx, msg.ConversationID, normalized, item); err != nil {
		return handlerResult{keyword: normalized}, err
	}
	return handlerResult{reply: addedReply(normalized), keyword: normalized, outcome: outcomeOK}, nil
}

func runUpdatelist(ctx context.Context, e *Engine, msg *Message, args string, _ authz.Roster) (handlerResult, error) {
	keyword, content := splitKeywordContent(args)
	if keyword == "" {
		return handlerResult{reply: usageReply(e.prefix, "updatelist", "<keyword> || <content>"), outcome: outcomeValidation}, nil
	}
	normalized := trigger.NormalizeKeyword(keyword)
	if _, exists, err := e.triggers.Lookup(ctx, msg.ConversationID, normalized); err != nil {
		return handlerResult{keyword: normalized}, err
	} else if !exists {
		return handlerResult{reply: notFoundReply(normalized), keyword: normalized, outcome: outcomeNotFound}, nil
	}
	item, validation, err := e.buildItem(ctx, msg, normalized, content)
	if err != nil {
		return handlerResult{keyword: normalized}, err
	}
	if validation != "" {
		return handlerResult{reply: validation, keyword: normalized, outcome: outcomeValidation}, nil
	}
	if err := e.triggers.Upsert(ctx, msg.ConversationID, normalized, item); err != nil {
		return handlerResult{keyword: normalized}, err
	}
	return handlerResult{reply: updatedReply(normalized), keyword: normalized, outcome: outcomeOK}, nil
}

func runDellist(ctx context.Context, e *Engine, msg *Message, args string, _ authz.Roster) (handlerResult, error) {
	keyword := strings.TrimSpace(args)
	if keyword == "" {
		return handlerResult{reply: usageReply(e.prefix, "dellist", "<keyword>"), outcome: outcomeValidation}, nil
	}
	normalized := trigger.NormalizeKeyword(keyword)
	removed, err := e.triggers.Remove(ctx, msg.ConversationID, normalized)
	if err != nil {
		return handlerResult{keyword: normalized}, err
	}
	if !removed {
		return handlerResult{reply: notFoundReply(normalized), keyword: normalized, outcome: outcomeNotFound}, nil
	}
	return handlerResult{reply: deletedReply(normalized), keyword: normalized, outcome: outcomeOK}, nil
}

func runListall(ctx context.Context, e *Engine, msg *Message, _ string, _ authz.Roster) (handlerResult, error) {
	keywords, err := e.triggers.Keywords(ctx, msg.ConversationID)
	if err != nil {
		return handlerResult{}, err
	}
	if len(keywords) == 0 {
		return handlerResult{reply: replyNoLists, outcome: outcomeOK}, nil
	}
	return handlerResult{reply: keywordListReply(keywords), outcome: outcomeOK}, nil
}

// textOrQuoted resolves the shared "remaining text, else the quoted
// message's body" argument form.
func textOrQuoted(args string, msg *Message) string {
	if text := strings.TrimSpace(args); text != "" {
		return text
	}
	return strings.TrimSpace(msg.QuotedBody)
}

// runHidetag sends its own message so the mentions can ride along; the
// broadcast is the command's single reply.
func runHidetag(ctx context.Context, e *Engine, msg *Message, args string, roster authz.Roster) (handlerResult, error) {
	text := textOrQuoted(args, msg)
	if text == "" {
		return handlerResult{reply: usageReply(e.prefix, "hidetag", "<text>"), outcome: outcomeValidation}, nil
	}
	if err := e.send(ctx, msg.ConversationID, SendRequest{Text: text, Mentions: roster.ActorIDs()}); err != nil {
		return handlerResult{}, err
	}
	return handlerResult{outcome: outcomeOK}, nil
}

func runSetwelcome(ctx context.Context, e *Engine, msg *Message, args string, _ authz.Roster) (handlerResult, error) {
	template := textOrQuoted(args, msg)
	if template == "" {
		return handlerResult{reply: usageReply(e.prefix, "setwelcome", "<template>"), outcome: outcomeValidation}, nil
	}
	if err := e.groups.SetWelcome(ctx, msg.ConversationID, template); err != nil {
		return handlerResult{}, err
	}
	return handlerResult{reply: replyWelcome, outcome: outcomeOK}, nil
}

func runSetbye(ctx context.Context, e *Engine, msg *Message, args string, _ authz.Roster) (handlerResult, error) {
	template := textOrQuoted(args, msg)
	if template == "" {
		return handlerResult{reply: usageReply(e.prefix, "setbye", "<template>"), outcome: outcomeValidation}, nil
	}
	if err := e.groups.SetBye(ctx, msg.ConversationID, template); err != nil {
		return handlerResult{}, err
	}
	return handlerResult{reply: replyBye, outcome: outcomeOK}, nil
}

func runOpen(ctx context.Context, e *Engine, msg *Message, _ string, _ authz.Roster) (handlerResult, error) {
	if err := e.groups.SetOpen(ctx, msg.ConversationID, true); err != nil {
		return handlerResult{}, err
	}
	return handlerResult{reply: replyOpened, outcome: outcomeOK}, nil
}

func runClose(ctx context.Context, e *Engine, msg *Message, _ string, _ authz.Roster) (handlerResult, error) {
	if err := e.groups.SetOpen(ctx, msg.ConversationID, false); err != nil {
		return handlerResult{}, err
	}
	return handlerResult{reply: replyClosed, outcome: outcomeOK}, nil
}

func runShutdown(_ context.Context, e *Engine, _ *Message, _ string, _ authz.Roster) (handlerResult, error) {
	return handlerResult{reply: replyShutdown, outcome: outcomeOK, after: e.shutdown}, nil
}

// buildItem derives the stored item from the invoking message: an
// attached media payload wins, then explicit text content, then the
// quoted message's body. An empty third return means the item is valid.
func (e *Engine) buildItem(ctx context.Context, msg *Message, keyword, content string) (trigger.Item, string, error) {
	if att := msg.Attachment; att != nil && att.Kind.IsMedia() {
		ref, err := e.triggers.SaveMedia(ctx, msg.ConversationID, keyword, att.MimeType, att.Data)
		if err != nil {
			return trigger.Item{}, "", err
		}
		return trigger.Item{Kind: att.Kind, Text: content, MediaRef: ref, MimeType: att.MimeType}, "", nil
	}
	if content == "" {
		content = strings.TrimSpace(msg.QuotedBody)
	}
	if content == "" {
		return trigger.Item{}, replyMissingContent, nil
	}
	return trigger.Item{Kind: trigger.KindText, Text: content}, "", nil
}
