// Package engine is the command interpreter and trigger resolver: it
// turns normalized inbound events into store mutations and outbound
// sends, enforcing the admin gate and the open/closed conversation
// gate along the way.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/quailyquaily/listkeeper/audit"
	"github.com/quailyquaily/listkeeper/authz"
	"github.com/quailyquaily/listkeeper/groupcfg"
	"github.com/quailyquaily/listkeeper/placeholder"
	"github.com/quailyquaily/listkeeper/trigger"
)

const DefaultPrefix = "."

// Hooks let the runtime observe engine outcomes (metrics) without the
// core importing any instrumentation.
type Hooks struct {
	OnCommand      func(name, outcome string)
	OnTriggerFired func()
	OnSendError    func()
}

type Options struct {
	Prefix    string
	Triggers  trigger.Store
	Groups    groupcfg.Store
	Transport Transport
	Logger    *slog.Logger
	Audit     audit.Recorder
	Hooks     Hooks
	Now       func() time.Time

	// Shutdown is invoked after the shutdown command's confirmation has
	// been sent. The engine never exits the process itself.
	Shutdown func()
}

type Engine struct {
	prefix    string
	triggers  trigger.Store
	groups    groupcfg.Store
	transport Transport
	logger    *slog.Logger
	auditor   audit.Recorder
	hooks     Hooks
	now       func() time.Time
	shutdown  func()
	registry  map[string]*command
}

func New(opts Options) (*Engine, error) {
	if opts.Triggers == nil {
		return nil, fmt.Errorf("engine: trigger store is required")
	}
	if opts.Groups == nil {
		return nil, fmt.Errorf("engine: group config store is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("engine: transport is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if utf8.RuneCountInString(prefix) != 1 {
		return nil, fmt.Errorf("engine: command prefix must be a single character, got %q", prefix)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditor := opts.Audit
	if auditor == nil {
		auditor = audit.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	shutdown := opts.Shutdown
	if shutdown == nil {
		shutdown = func() {}
	}
	return &Engine{
		prefix:    prefix,
		triggers:  opts.Triggers,
		groups:    opts.Groups,
		transport: opts.Transport,
		logger:    logger,
		auditor:   auditor,
		hooks:     opts.Hooks,
		now:       now,
		shutdown:  shutdown,
		registry:  newCommandRegistry(),
	}, nil
}

// HandleMessage processes one inbound message to completion: a body
// starting with the command prefix goes down the command path and is
// never also evaluated as a trigger key.
func (e *Engine) HandleMessage(ctx context.Context, msg Message) error {
	body := strings.TrimSpace(msg.Body)
	if parsed, isCommand := parseCommand(body, e.prefix); isCommand {
		return e.handleCommand(ctx, &msg, parsed)
	}
	return e.resolveTrigger(ctx, &msg, body)
}

func (e *Engine) handleCommand(ctx context.Context, msg *Message, parsed parsedCommand) error {
	cmd, ok := e.registry[parsed.Name]
	if !ok {
		// Ordinary punctuation-prefixed chat; stay silent.
		e.logger.Debug("command_unknown", "conversation_id", msg.ConversationID, "name", parsed.Name)
		return nil
	}

	var roster authz.Roster
	if cmd.class == classMutation {
		if !msg.IsGroup {
			e.finishCommand(ctx, msg, cmd, handlerResult{reply: replyGroupOnly, outcome: outcomeDenied})
			return nil
		}
		fetched, err := e.transport.Roster(ctx, msg.ConversationID)
		if err != nil {
			// Fail closed: an unknown roster means nobody is admin.
			e.logger.Warn("roster_fetch_error", "conversation_id", msg.ConversationID, "error", err.Error())
			fetched = nil
		}
		roster = fetched
		if !roster.IsAdmin(msg.ActorID) {
			e.finishCommand(ctx, msg, cmd, handlerResult{reply: replyAdminOnly, outcome: outcomeDenied})
			return nil
		}
	}

	res, err := cmd.run(ctx, e, msg, parsed.Args, roster)
	if err != nil {
		e.logger.Error("command_error", "command", cmd.name, "conversation_id", msg.ConversationID, "error", err.Error())
		res = handlerResult{reply: replyStoreError, keyword: res.keyword, outcome: outcomeError}
	}
	e.finishCommand(ctx, msg, cmd, res)
	return nil
}

// finishCommand emits the command's single reply, then audit, hooks,
// and any post-reply action. Store writes already happened inside the
// handler, so a durable mutation always precedes its success reply.
func (e *Engine) finishCommand(ctx context.Context, msg *Message, cmd *command, res handlerResult) {
	if res.reply != "" {
		e.reply(ctx, msg.ConversationID, res.reply)
	}
	if cmd.class == classMutation {
		if err := e.auditor.Record(ctx, audit.Record{
			At:             e.now().UTC(),
			ConversationID: msg.ConversationID,
			ActorID:        msg.ActorID,
			Command:        cmd.name,
			Keyword:        res.keyword,
			OK:             res.outcome == outcomeOK,
		}); err != nil {
			e.logger.Warn("audit_record_error", "command", cmd.name, "error", err.Error())
		}
	}
	if e.hooks.OnCommand != nil {
		e.hooks.OnCommand(cmd.name, res.outcome)
	}
	e.logger.Info("command_handled",
		"command", cmd.name,
		"conversation_id", msg.ConversationID,
		"actor_id", msg.ActorID,
		"outcome", res.outcome,
	)
	if res.after != nil {
		res.after()
	}
}

func (e *Engine) resolveTrigger(ctx context.Context, msg *Message, body string) error {
	if body == "" {
		return nil
	}
	if msg.IsGroup {
		cfg, err := e.groups.Get(ctx, msg.ConversationID)
		if err != nil {
			return fmt.Errorf("load group config: %w", err)
		}
		if !cfg.IsOpen {
			e.logger.Debug("conversation_closed", "conversation_id", msg.ConversationID)
			return nil
		}
	}

	item, found, err := e.triggers.Lookup(ctx, msg.ConversationID, body)
	if err != nil {
		return fmt.Errorf("trigger lookup: %w", err)
	}
	if !found {
		return nil
	}

	rendered := placeholder.Render(item.Text, e.placeholderContext(msg.ActorID, msg))
	req := SendRequest{Text: rendered}
	if item.Kind.IsMedia() {
		req = SendRequest{
			MediaKind: item.Kind,
			MediaRef:  item.MediaRef,
			MimeType:  item.MimeType,
			Caption:   rendered,
		}
	}
	if err := e.send(ctx, msg.ConversationID, req); err != nil {
		return err
	}
	if e.hooks.OnTriggerFired != nil {
		e.hooks.OnTriggerFired()
	}
	e.logger.Info("trigger_fired",
		"conversation_id", msg.ConversationID,
		"keyword", trigger.NormalizeKeyword(body),
		"kind", string(item.Kind),
	)
	return nil
}

// HandleMembership fans the configured welcome or goodbye template out
// to each affected actor, one send per actor with that actor mentioned.
func (e *Engine) HandleMembership(ctx context.Context, event Membership) error {
	cfg, err := e.groups.Get(ctx, event.ConversationID)
	if err != nil {
		return fmt.Errorf("load group config: %w", err)
	}
	var template string
	switch event.Action {
	case MembershipJoin:
		template = cfg.Welcome
	case MembershipLeave:
		template = cfg.Bye
	default:
		return fmt.Errorf("unknown membership action: %q", event.Action)
	}
	if strings.TrimSpace(template) == "" {
		return nil
	}

	for _, actorID := range event.ActorIDs {
		text := placeholder.Render(template, placeholder.Context{
			ActorID:          actorID,
			ConversationName: event.ConversationName,
			Now:              e.now(),
		})
		if err := e.send(ctx, event.ConversationID, SendRequest{Text: text, Mentions: []string{actorID}}); err != nil {
			continue
		}
		e.logger.Info("membership_notice_sent",
			"conversation_id", event.ConversationID,
			"actor_id", actorID,
			"action", string(event.Action),
		)
	}
	return nil
}

func (e *Engine) placeholderContext(actorID string, msg *Message) placeholder.Context {
	name := ""
	if msg.IsGroup {
		name = msg.ConversationName
	}
	return placeholder.Context{ActorID: actorID, ConversationName: name, Now: e.now()}
}

func (e *Engine) reply(ctx context.Context, conversationID, text string) {
	_ = e.send(ctx, conversationID, SendRequest{Text: text})
}

func (e *Engine) send(ctx context.Context, conversationID string, req SendRequest) error {
	if err := e.transport.Send(ctx, conversationID, req); err != nil {
		e.logger.Warn("send_error", "conversation_id", conversationID, "error", err.Error())
		if e.hooks.OnSendError != nil {
			e.hooks.OnSendError()
		}
		return err
	}
	return nil
}
