package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/quailyquaily/listkeeper/audit"
	"github.com/quailyquaily/listkeeper/authz"
	"github.com/quailyquaily/listkeeper/groupcfg"
	"github.com/quailyquaily/listkeeper/trigger"
)

type sentMessage struct {
	ConversationID string
	Req            SendRequest
}

type fakeTransport struct {
	sent      []sentMessage
	sendErr   error
	rosters   map[string]authz.Roster
	rosterErr error
}

func (f *fakeTransport) Send(_ context.Context, conversationID string, req SendRequest) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{ConversationID: conversationID, Req: req})
	return nil
}

func (f *fakeTransport) Roster(_ context.Context, conversationID string) (authz.Roster, error) {
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	return f.rosters[conversationID], nil
}

type recordingAuditor struct {
	records []audit.Record
}

func (r *recordingAuditor) Record(_ context.Context, record audit.Record) error {
	r.records = append(r.records, record)
	return nil
}

type testRig struct {
	engine     *Engine
	transport  *fakeTransport
	auditor    *recordingAuditor
	triggers   trigger.Store
	groups     groupcfg.Store
	shutdownCh chan struct{}
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	transport := &fakeTransport{rosters: map[string]authz.Roster{
		"group-1": {
			{ActorID: "6281@host", IsAdmin: true},
			{ActorID: "6282@host", IsAdmin: false},
		},
	}}
	auditor := &recordingAuditor{}
	triggers := trigger.NewFileStore(t.TempDir(), logger)
	groups := groupcfg.NewFileStore(t.TempDir(), logger)
	shutdownCh := make(chan struct{}, 1)
	eng, err := New(Options{
		Triggers:  triggers,
		Groups:    groups,
		Transport: transport,
		Logger:    logger,
		Audit:     auditor,
		Now:       func() time.Time { return time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC) },
		Shutdown:  func() { shutdownCh <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testRig{
		engine:     eng,
		transport:  transport,
		auditor:    auditor,
		triggers:   triggers,
		groups:     groups,
		shutdownCh: shutdownCh,
	}
}

func adminMessage(body string) Message {
	return Message{
		ConversationID:   "group-1",
		ConversationName: "Study Group",
		ActorID:          "6281@host",
		IsGroup:          true,
		Body:             body,
	}
}

func memberMessage(body string) Message {
	msg := adminMessage(body)
	msg.ActorID = "6282@host"
	return msg
}

func (r *testRig) lastSent(t *testing.T) sentMessage {
	t.Helper()
	if len(r.transport.sent) == 0 {
		t.Fatalf("no message sent")
	}
	return r.transport.sent[len(r.transport.sent)-1]
}

func TestNewValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	triggers := trigger.NewFileStore(t.TempDir(), logger)
	groups := groupcfg.NewFileStore(t.TempDir(), logger)
	if _, err := New(Options{Groups: groups, Transport: &fakeTransport{}}); err == nil {
		t.Fatalf("New() without trigger store: want error")
	}
	if _, err := New(Options{Triggers: triggers, Groups: groups, Transport: &fakeTransport{}, Prefix: "!!"}); err == nil {
		t.Fatalf("New() with multi-rune prefix: want error")
	}
}

func TestAddlistThenTrigger(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.engine.HandleMessage(ctx, adminMessage(".addlist Rules || Be kind, @user")); err != nil {
		t.Fatalf("HandleMessage(addlist) error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != addedReply("rules") {
		t.Fatalf("addlist reply = %q, want %q", got, addedReply("rules"))
	}

	if err := rig.engine.HandleMessage(ctx, memberMessage("  RULES ")); err != nil {
		t.Fatalf("HandleMessage(trigger) error = %v", err)
	}
	got := rig.lastSent(t).Req.Text
	if want := "Be kind, @6282"; got != want {
		t.Fatalf("trigger reply = %q, want %q", got, want)
	}
}

func TestAddlistRejectsExisting(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	if err := rig.engine.HandleMessage(ctx, adminMessage(".addlist rules || v1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if err := rig.engine.HandleMessage(ctx, adminMessage(".addlist rules || v2")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != existsReply("rules", ".") {
		t.Fatalf("duplicate addlist reply = %q", got)
	}
	item, found, err := rig.triggers.Lookup(ctx, "group-1", "rules")
	if err != nil || !found {
		t.Fatalf("Lookup() = %v, %v, %v", item, found, err)
	}
	if item.Text != "v1" {
		t.Fatalf("stored text = %q, want original %q", item.Text, "v1")
	}
}

func TestUpdatelistRequiresExisting(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	if err := rig.engine.HandleMessage(ctx, adminMessage(".updatelist rules || v2")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != notFoundReply("rules") {
		t.Fatalf("updatelist reply = %q", got)
	}

	if err := rig.engine.HandleMessage(ctx, adminMessage(".addlist rules || v1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if err := rig.engine.HandleMessage(ctx, adminMessage(".updatelist rules || v2")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	item, _, err := rig.triggers.Lookup(ctx, "group-1", "rules")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if item.Text != "v2" {
		t.Fatalf("stored text = %q, want %q", item.Text, "v2")
	}
}

func TestDellistAndListall(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	for _, kw := range []string{"zebra", "alpha"} {
		body := fmt.Sprintf(".addlist %s || content", kw)
		if err := rig.engine.HandleMessage(ctx, adminMessage(body)); err != nil {
			t.Fatalf("HandleMessage() error = %v", err)
		}
	}

	// listall has no admin gate and preserves insertion order.
	if err := rig.engine.HandleMessage(ctx, memberMessage(".listall")); err != nil {
		t.Fatalf("HandleMessage(listall) error = %v", err)
	}
	if got, want := rig.lastSent(t).Req.Text, keywordListReply([]string{"zebra", "alpha"}); got != want {
		t.Fatalf("listall reply = %q, want %q", got, want)
	}

	if err := rig.engine.HandleMessage(ctx, adminMessage(".dellist zebra")); err != nil {
		t.Fatalf("HandleMessage(dellist) error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != deletedReply("zebra") {
		t.Fatalf("dellist reply = %q", got)
	}
	if err := rig.engine.HandleMessage(ctx, adminMessage(".dellist zebra")); err != nil {
		t.Fatalf("HandleMessage(dellist missing) error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != notFoundReply("zebra") {
		t.Fatalf("missing dellist reply = %q", got)
	}
}

func TestMutationDeniedForNonAdmin(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	if err := rig.engine.HandleMessage(ctx, memberMessage(".addlist rules || v1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != replyAdminOnly {
		t.Fatalf("reply = %q, want admin refusal", got)
	}
	if _, found, _ := rig.triggers.Lookup(ctx, "group-1", "rules"); found {
		t.Fatalf("store mutated by denied command")
	}
	if len(rig.auditor.records) != 1 || rig.auditor.records[0].OK {
		t.Fatalf("audit records = %+v, want one denied record", rig.auditor.records)
	}
}

func TestRosterFetchFailureFailsClosed(t *testing.T) {
	rig := newTestRig(t)
	rig.transport.rosterErr = errors.New("bridge timeout")
	if err := rig.engine.HandleMessage(context.Background(), adminMessage(".close")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != replyAdminOnly {
		t.Fatalf("reply = %q, want admin refusal on roster failure", got)
	}
	cfg, err := rig.groups.Get(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !cfg.IsOpen {
		t.Fatalf("conversation closed despite denied command")
	}
}

func TestMutationRefusedOutsideGroups(t *testing.T) {
	rig := newTestRig(t)
	msg := Message{ConversationID: "dm-1", ActorID: "6281@host", Body: ".addlist rules || v1"}
	if err := rig.engine.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != replyGroupOnly {
		t.Fatalf("reply = %q, want group-only refusal", got)
	}
}

func TestUnknownCommandIsSilent(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.engine.HandleMessage(context.Background(), adminMessage(".frobnicate now")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(rig.transport.sent) != 0 {
		t.Fatalf("sent = %+v, want silence for unknown command", rig.transport.sent)
	}
}

func TestCommandNeverResolvesAsTrigger(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	if err := rig.engine.HandleMessage(ctx, adminMessage(".addlist listall || trap")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	before := len(rig.transport.sent)
	if err := rig.engine.HandleMessage(ctx, memberMessage(".listall")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; !strings.HasPrefix(got, "📋") {
		t.Fatalf("reply = %q, want the keyword list, not the stored trap", got)
	}
	if len(rig.transport.sent) != before+1 {
		t.Fatalf("want exactly one reply per command")
	}
}

func TestClosedConversationSuppressesTriggers(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	if err := rig.engine.HandleMessage(ctx, adminMessage(".addlist rules || text")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if err := rig.engine.HandleMessage(ctx, adminMessage(".tutup")); err != nil {
		t.Fatalf("HandleMessage(tutup) error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != replyClosed {
		t.Fatalf("close reply = %q", got)
	}

	before := len(rig.transport.sent)
	if err := rig.engine.HandleMessage(ctx, memberMessage("rules")); err != nil {
		t.Fatalf("HandleMessage(trigger) error = %v", err)
	}
	if len(rig.transport.sent) != before {
		t.Fatalf("trigger fired in a closed conversation")
	}

	// Commands still work while closed.
	if err := rig.engine.HandleMessage(ctx, memberMessage(".listall")); err != nil {
		t.Fatalf("HandleMessage(listall) error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; !strings.Contains(got, "rules") {
		t.Fatalf("listall while closed = %q", got)
	}

	if err := rig.engine.HandleMessage(ctx, adminMessage(".buka")); err != nil {
		t.Fatalf("HandleMessage(buka) error = %v", err)
	}
	if err := rig.engine.HandleMessage(ctx, memberMessage("rules")); err != nil {
		t.Fatalf("HandleMessage(trigger) error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != "text" {
		t.Fatalf("reopened trigger reply = %q", got)
	}
}

func TestHidetagMentionsEveryMember(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.engine.HandleMessage(context.Background(), adminMessage(".h meeting at 9")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	sent := rig.lastSent(t)
	if sent.Req.Text != "meeting at 9" {
		t.Fatalf("broadcast text = %q", sent.Req.Text)
	}
	if len(sent.Req.Mentions) != 2 {
		t.Fatalf("mentions = %v, want full roster", sent.Req.Mentions)
	}
	if len(rig.transport.sent) != 1 {
		t.Fatalf("sent %d messages, the broadcast is the only reply", len(rig.transport.sent))
	}
}

func TestHidetagFallsBackToQuotedBody(t *testing.T) {
	rig := newTestRig(t)
	msg := adminMessage(".hidetag")
	msg.QuotedBody = "pinned announcement"
	if err := rig.engine.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != "pinned announcement" {
		t.Fatalf("broadcast text = %q", got)
	}
}

func TestAddlistWithAttachment(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	msg := adminMessage(".addlist poster || Event poster")
	msg.Attachment = &Attachment{Kind: trigger.KindImage, MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	if err := rig.engine.HandleMessage(ctx, msg); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	item, found, err := rig.triggers.Lookup(ctx, "group-1", "poster")
	if err != nil || !found {
		t.Fatalf("Lookup() = %v, %v", found, err)
	}
	if item.Kind != trigger.KindImage || item.MediaRef == "" {
		t.Fatalf("stored item = %+v, want image with media ref", item)
	}

	if err := rig.engine.HandleMessage(ctx, memberMessage("poster")); err != nil {
		t.Fatalf("HandleMessage(trigger) error = %v", err)
	}
	sent := rig.lastSent(t)
	if sent.Req.MediaKind != trigger.KindImage || sent.Req.MediaRef != item.MediaRef {
		t.Fatalf("trigger send = %+v, want media payload", sent.Req)
	}
	if sent.Req.Caption != "Event poster" {
		t.Fatalf("caption = %q", sent.Req.Caption)
	}
}

func TestAddlistWithoutContentOrAttachment(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.engine.HandleMessage(context.Background(), adminMessage(".addlist rules")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != replyMissingContent {
		t.Fatalf("reply = %q", got)
	}
}

func TestSinglePlaceholders(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	body := ".addlist when || @user asked in @group on @date at @time"
	if err := rig.engine.HandleMessage(ctx, adminMessage(body)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if err := rig.engine.HandleMessage(ctx, memberMessage("when")); err != nil {
		t.Fatalf("HandleMessage(trigger) error = %v", err)
	}
	got := rig.lastSent(t).Req.Text
	want := "@6282 asked in Study Group on 09/03/2024 at 14:30:05"
	if got != want {
		t.Fatalf("rendered = %q, want %q", got, want)
	}
}

func TestDirectMessageTriggerUsesGroupFallback(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	if err := rig.engine.HandleMessage(ctx, adminMessage(".addlist where || see @group")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	dm := Message{ConversationID: "group-1", ActorID: "6282@host", Body: "where"}
	if err := rig.engine.HandleMessage(ctx, dm); err != nil {
		t.Fatalf("HandleMessage(dm) error = %v", err)
	}
	if got, want := rig.lastSent(t).Req.Text, "see this conversation"; got != want {
		t.Fatalf("rendered = %q, want %q", got, want)
	}
}

func TestWelcomeAndByeEvents(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	if err := rig.engine.HandleMessage(ctx, adminMessage(".setwelcome Welcome @user to @group!")); err != nil {
		t.Fatalf("HandleMessage(setwelcome) error = %v", err)
	}
	if err := rig.engine.HandleMessage(ctx, adminMessage(".setbye Bye @user")); err != nil {
		t.Fatalf("HandleMessage(setbye) error = %v", err)
	}

	event := Membership{
		ConversationID:   "group-1",
		ConversationName: "Study Group",
		ActorIDs:         []string{"100@host", "200@host"},
		Action:           MembershipJoin,
	}
	before := len(rig.transport.sent)
	if err := rig.engine.HandleMembership(ctx, event); err != nil {
		t.Fatalf("HandleMembership() error = %v", err)
	}
	joins := rig.transport.sent[before:]
	if len(joins) != 2 {
		t.Fatalf("sent %d welcome messages, want one per actor", len(joins))
	}
	if got, want := joins[0].Req.Text, "Welcome @100 to Study Group!"; got != want {
		t.Fatalf("welcome = %q, want %q", got, want)
	}
	if got := joins[1].Req.Mentions; len(got) != 1 || got[0] != "200@host" {
		t.Fatalf("mentions = %v, want just the affected actor", got)
	}

	event.Action = MembershipLeave
	event.ActorIDs = []string{"100@host"}
	if err := rig.engine.HandleMembership(ctx, event); err != nil {
		t.Fatalf("HandleMembership(leave) error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != "Bye @100" {
		t.Fatalf("bye = %q", got)
	}
}

func TestSetwelcomeFallsBackToQuotedBody(t *testing.T) {
	rig := newTestRig(t)
	msg := adminMessage(".setwelcome")
	msg.QuotedBody = "Welcome aboard, @user"
	if err := rig.engine.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != replyWelcome {
		t.Fatalf("reply = %q", got)
	}
	cfg, err := rig.groups.Get(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cfg.Welcome != "Welcome aboard, @user" {
		t.Fatalf("welcome template = %q", cfg.Welcome)
	}
}

func TestMembershipWithoutTemplateIsSilent(t *testing.T) {
	rig := newTestRig(t)
	event := Membership{ConversationID: "group-1", ActorIDs: []string{"100@host"}, Action: MembershipJoin}
	if err := rig.engine.HandleMembership(context.Background(), event); err != nil {
		t.Fatalf("HandleMembership() error = %v", err)
	}
	if len(rig.transport.sent) != 0 {
		t.Fatalf("sent = %+v, want silence without a welcome template", rig.transport.sent)
	}
}

func TestShutdownRepliesThenInvokesCallback(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.engine.HandleMessage(context.Background(), adminMessage(".shutdown")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := rig.lastSent(t).Req.Text; got != replyShutdown {
		t.Fatalf("reply = %q", got)
	}
	select {
	case <-rig.shutdownCh:
	default:
		t.Fatalf("shutdown callback not invoked")
	}
}

func TestAuditTrailForMutations(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	if err := rig.engine.HandleMessage(ctx, adminMessage(".addlist rules || v1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if err := rig.engine.HandleMessage(ctx, memberMessage(".listall")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(rig.auditor.records) != 1 {
		t.Fatalf("audit records = %d, want mutations only", len(rig.auditor.records))
	}
	rec := rig.auditor.records[0]
	if rec.Command != "addlist" || rec.Keyword != "rules" || !rec.OK {
		t.Fatalf("audit record = %+v", rec)
	}
	if rec.ActorID != "6281@host" || rec.ConversationID != "group-1" {
		t.Fatalf("audit attribution = %+v", rec)
	}
}

func TestCommandHooksObserveOutcomes(t *testing.T) {
	rig := newTestRig(t)
	var seen []string
	rig.engine.hooks.OnCommand = func(name, outcome string) {
		seen = append(seen, name+":"+outcome)
	}
	ctx := context.Background()
	if err := rig.engine.HandleMessage(ctx, adminMessage(".addlist rules || v1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if err := rig.engine.HandleMessage(ctx, memberMessage(".dellist rules")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	want := []string{"addlist:ok", "dellist:denied"}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Fatalf("hook outcomes = %v, want %v", seen, want)
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		body     string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{".addlist rules || text", "addlist", "rules || text", true},
		{".LISTALL", "listall", "", true},
		{".h   spread out  ", "h", "spread out", true},
		{"addlist rules", "", "", false},
		{"", "", "", false},
		{".", "", "", true},
	}
	for _, tc := range cases {
		got, ok := parseCommand(tc.body, ".")
		if ok != tc.wantOK {
			t.Fatalf("parseCommand(%q) ok = %v, want %v", tc.body, ok, tc.wantOK)
		}
		if got.Name != tc.wantName || got.Args != tc.wantArgs {
			t.Fatalf("parseCommand(%q) = %+v", tc.body, got)
		}
	}
}

func TestSplitKeywordContent(t *testing.T) {
	cases := []struct {
		args        string
		wantKeyword string
		wantContent string
	}{
		{"rules || be kind", "rules", "be kind"},
		{"rules be kind", "rules", "be kind"},
		{"multi word || a || b", "multi word", "a || b"},
		{"solo", "solo", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		keyword, content := splitKeywordContent(tc.args)
		if keyword != tc.wantKeyword || content != tc.wantContent {
			t.Fatalf("splitKeywordContent(%q) = %q, %q", tc.args, keyword, content)
		}
	}
}
