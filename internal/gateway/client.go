// Package gateway speaks the websocket protocol of the external bridge
// process that owns the actual chat session. The bridge pushes
// normalized message and membership frames; the bot pushes send and
// roster frames. One frame type per concern, JSON-encoded.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quailyquaily/listkeeper/authz"
	"github.com/quailyquaily/listkeeper/engine"
	"github.com/quailyquaily/listkeeper/trigger"
)

const (
	defaultRosterTimeout = 10 * time.Second
	pingInterval         = 30 * time.Second
	writeTimeout         = 10 * time.Second
)

var ErrClosed = errors.New("gateway: connection closed")

// Handlers receive inbound frames already mapped to engine shapes. A
// nil handler drops its frame kind.
type Handlers struct {
	OnMessage    func(engine.Message)
	OnMembership func(engine.Membership)
}

type Options struct {
	URL           string
	Token         string
	Logger        *slog.Logger
	RosterTimeout time.Duration
}

// Client is one live bridge connection. It satisfies engine.Transport;
// Run must be active for Roster to complete, since results arrive on
// the read loop.
type Client struct {
	url           string
	token         string
	logger        *slog.Logger
	rosterTimeout time.Duration
	conn          *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan rosterOutcome
}

type rosterOutcome struct {
	roster authz.Roster
	err    error
}

func Dial(ctx context.Context, opts Options) (*Client, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, fmt.Errorf("gateway: bridge url is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rosterTimeout := opts.RosterTimeout
	if rosterTimeout <= 0 {
		rosterTimeout = defaultRosterTimeout
	}

	dialer := *websocket.DefaultDialer
	header := map[string][]string{}
	if token := strings.TrimSpace(opts.Token); token != "" {
		header["Authorization"] = []string{"Bearer " + token}
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("gateway: dial %s: %w", url, err)
	}
	return &Client{
		url:           url,
		token:         opts.Token,
		logger:        logger,
		rosterTimeout: rosterTimeout,
		conn:          conn,
		pending:       map[string]chan rosterOutcome{},
	}, nil
}

// Run reads frames until the connection breaks or ctx is canceled. It
// always returns a non-nil error; the caller decides whether to
// reconnect.
func (c *Client) Run(ctx context.Context, handlers Handlers) error {
	go c.pingLoop(ctx)
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.failPending(ErrClosed)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gateway: read: %w", err)
		}
		switch f.Type {
		case frameTypeMessage:
			if f.Message == nil {
				c.logger.Warn("gateway_frame_invalid", "type", f.Type, "reason", "missing payload")
				continue
			}
			if handlers.OnMessage != nil {
				handlers.OnMessage(messageFromFrame(f.Message))
			}
		case frameTypeMembership:
			if f.Membership == nil {
				c.logger.Warn("gateway_frame_invalid", "type", f.Type, "reason", "missing payload")
				continue
			}
			if handlers.OnMembership != nil {
				handlers.OnMembership(membershipFromFrame(f.Membership))
			}
		case frameTypeRosterResult:
			c.resolvePending(&f)
		case frameTypePong:
			// keepalive only
		default:
			c.logger.Debug("gateway_frame_ignored", "type", f.Type)
		}
	}
}

// Send implements engine.Transport. Media payloads are inlined from
// the blob the MediaRef points at, so the bridge never touches the
// bot's state directory.
func (c *Client) Send(ctx context.Context, conversationID string, req engine.SendRequest) error {
	payload := sendFrame{
		ConversationID: conversationID,
		Text:           req.Text,
		Mentions:       req.Mentions,
		Caption:        req.Caption,
	}
	if req.MediaKind.IsMedia() {
		data, err := os.ReadFile(req.MediaRef)
		if err != nil {
			return fmt.Errorf("gateway: read media %s: %w", req.MediaRef, err)
		}
		payload.MediaKind = string(req.MediaKind)
		payload.MimeType = req.MimeType
		payload.MediaData = data
	}
	return c.writeFrame(ctx, frame{Type: frameTypeSend, ID: uuid.NewString(), Send: &payload})
}

// Roster implements engine.Transport: it issues a roster frame and
// blocks until the correlated roster_result arrives or the timeout
// elapses.
func (c *Client) Roster(ctx context.Context, conversationID string) (authz.Roster, error) {
	id := uuid.NewString()
	outcome := make(chan rosterOutcome, 1)

	c.pendingMu.Lock()
	c.pending[id] = outcome
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := frame{Type: frameTypeRoster, ID: id, Roster: &rosterFrame{ConversationID: conversationID}}
	if err := c.writeFrame(ctx, req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.rosterTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("gateway: roster request timed out after %s", c.rosterTimeout)
	case out := <-outcome:
		return out.roster, out.err
	}
}

func (c *Client) Close() error {
	c.failPending(ErrClosed)
	return c.conn.Close()
}

func (c *Client) writeFrame(ctx context.Context, f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("gateway: write %s frame: %w", f.Type, err)
	}
	return nil
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeFrame(ctx, frame{Type: frameTypePing, ID: uuid.NewString()}); err != nil {
				return
			}
		}
	}
}

func (c *Client) resolvePending(f *frame) {
	c.pendingMu.Lock()
	outcome, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Debug("gateway_roster_result_unmatched", "id", f.ID)
		return
	}
	if f.Error != "" {
		outcome <- rosterOutcome{err: fmt.Errorf("gateway: roster failed: %s", f.Error)}
		return
	}
	var roster authz.Roster
	if f.Roster != nil {
		for _, member := range f.Roster.Members {
			roster = append(roster, authz.Member{ActorID: member.ActorID, IsAdmin: member.IsAdmin})
		}
	}
	outcome <- rosterOutcome{roster: roster}
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, outcome := range c.pending {
		outcome <- rosterOutcome{err: err}
		delete(c.pending, id)
	}
}

func messageFromFrame(f *messageFrame) engine.Message {
	msg := engine.Message{
		ConversationID:   f.ConversationID,
		ConversationName: f.ConversationName,
		ActorID:          f.ActorID,
		IsGroup:          f.IsGroup,
		Body:             f.Body,
		QuotedBody:       f.QuotedBody,
	}
	if f.Attachment != nil && len(f.Attachment.Data) > 0 {
		kind := trigger.Kind(f.Attachment.Kind)
		if kind.IsMedia() {
			msg.Attachment = &engine.Attachment{
				Kind:     kind,
				MimeType: f.Attachment.MimeType,
				Data:     f.Attachment.Data,
			}
		}
	}
	return msg
}

func membershipFromFrame(f *membershipFrame) engine.Membership {
	return engine.Membership{
		ConversationID:   f.ConversationID,
		ConversationName: f.ConversationName,
		ActorIDs:         append([]string(nil), f.ActorIDs...),
		Action:           engine.MembershipAction(f.Action),
	}
}
