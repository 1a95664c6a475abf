package handlers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"marzban-tg-admin/internal/commands"
	"marzban-tg-admin/internal/config"
	"marzban-tg-admin/internal/models"
	"marzban-tg-admin/internal/permissions"
	"marzban-tg-admin/internal/services"
	"marzban-tg-admin/internal/storage"
	"marzban-tg-admin/pkg/marzban"
)

const adminID int64 = 1

// fakeContext records what a handler sends back to the chat
type fakeContext struct {
	telebot.Context
	sender    *telebot.User
	text      string
	callback  *telebot.Callback
	messages  []string
	photos    int
	responses []*telebot.CallbackResponse
}

func textUpdate(from int64, text string) *fakeContext {
	return &fakeContext{sender: &telebot.User{ID: from}, text: text}
}

func callbackUpdate(from int64, data string) *fakeContext {
	return &fakeContext{sender: &telebot.User{ID: from}, callback: &telebot.Callback{Data: data}}
}

func (c *fakeContext) Sender() *telebot.User       { return c.sender }
func (c *fakeContext) Text() string                { return c.text }
func (c *fakeContext) Callback() *telebot.Callback { return c.callback }

func (c *fakeContext) Send(what interface{}, opts ...interface{}) error {
	c.record(what)
	return nil
}

func (c *fakeContext) Edit(what interface{}, opts ...interface{}) error {
	c.record(what)
	return nil
}

func (c *fakeContext) Respond(resp ...*telebot.CallbackResponse) error {
	c.responses = append(c.responses, resp...)
	return nil
}

func (c *fakeContext) record(what interface{}) {
	switch v := what.(type) {
	case string:
		c.messages = append(c.messages, v)
	case *telebot.Photo:
		c.photos++
	}
}

func (c *fakeContext) last() string {
	if len(c.messages) == 0 {
		return ""
	}
	return c.messages[len(c.messages)-1]
}

type notice struct {
	chatID int64
	text   string
}

// recordingNotifier collects messages sent to other chats
type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) SendText(ctx context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{chatID: chatID, text: text})
	return nil
}

func (n *recordingNotifier) to(chatID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var texts []string
	for _, m := range n.notices {
		if m.chatID == chatID {
			texts = append(texts, m.text)
		}
	}
	return texts
}

// fakePanel keeps panel users in memory
type fakePanel struct {
	users   map[string]*models.PanelUser
	created []map[string]interface{}
	resets  []string
}

func newFakePanel(usernames ...string) *fakePanel {
	p := &fakePanel{users: make(map[string]*models.PanelUser)}
	for _, u := range usernames {
		p.users[u] = &models.PanelUser{Username: u, Status: models.PanelUserActive, SubscriptionURL: "https://panel/sub/" + u}
	}
	return p
}

func (p *fakePanel) GetUser(ctx context.Context, username string) (*models.PanelUser, error) {
	return p.users[username], nil
}

func (p *fakePanel) CreateUser(ctx context.Context, fields map[string]interface{}) (*models.PanelUser, error) {
	p.created = append(p.created, fields)
	name := fields["username"].(string)
	u := &models.PanelUser{Username: name, Status: models.PanelUserActive, SubscriptionURL: "https://panel/sub/" + name}
	p.users[name] = u
	return u, nil
}

func (p *fakePanel) DeleteUser(ctx context.Context, username string) bool {
	if _, ok := p.users[username]; !ok {
		return false
	}
	delete(p.users, username)
	return true
}

func (p *fakePanel) ListUsers(ctx context.Context, params marzban.ListUsersParams) (*models.UsersPage, error) {
	page := &models.UsersPage{Total: len(p.users)}
	for _, u := range p.users {
		page.Users = append(page.Users, *u)
	}
	return page, nil
}

func (p *fakePanel) GetSystemStats(ctx context.Context) (*models.SystemStats, error) {
	return &models.SystemStats{Version: "0.8.4", TotalUser: len(p.users)}, nil
}

func (p *fakePanel) GetUserUsage(ctx context.Context, username string) (*models.UserUsage, error) {
	return &models.UserUsage{Username: username}, nil
}

func (p *fakePanel) ResetUserTraffic(ctx context.Context, username string) (*models.PanelUser, error) {
	p.resets = append(p.resets, username)
	return p.users[username], nil
}

func (p *fakePanel) RevokeUserSubscription(ctx context.Context, username string) (*models.PanelUser, error) {
	return p.users[username], nil
}

func (p *fakePanel) GetNodes(ctx context.Context) ([]models.Node, error) {
	return nil, nil
}

type testEnv struct {
	svc      Services
	cfg      *config.Config
	panel    *fakePanel
	notifier *recordingNotifier
	logger   *logrus.Logger
}

func newTestEnv(t *testing.T, panel *fakePanel) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store := storage.New("file:handlers_"+name+"?mode=memory&cache=shared", logger, storage.WithRetryDelay(time.Millisecond))
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(store.Close)

	notifier := &recordingNotifier{}
	return &testEnv{
		svc: Services{
			Store:     store,
			Marzban:   services.NewMarzbanService(panel, store, logger),
			Broadcast: services.NewBroadcastService(store, notifier, 1000, logger),
			State:     services.NewUserStateService(logger),
			QR:        services.NewQRService(logger),
			Notifier:  notifier,
		},
		cfg:      &config.Config{Telegram: config.TelegramConfig{AdminIDs: []int64{adminID}}},
		panel:    panel,
		notifier: notifier,
		logger:   logger,
	}
}

func (e *testEnv) link(t *testing.T, username string, telegramID int64) {
	t.Helper()
	if err := e.svc.Store.UpdateTelegramID(context.Background(), username, telegramID); err != nil {
		t.Fatalf("link %s: %v", username, err)
	}
}

func (e *testEnv) state(t *testing.T, userID int64) models.ConversationState {
	t.Helper()
	st, err := e.svc.State.GetState(userID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return st.State
}

func handle(t *testing.T, h MessageHandler, c *fakeContext) {
	t.Helper()
	if err := h.Handle(context.Background(), c); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func TestHandlerFactory_CreateHandler(t *testing.T) {
	env := newTestEnv(t, newFakePanel())
	factory := NewHandlerFactory(env.svc, env.cfg, env.logger)

	for _, access := range []permissions.AccessType{permissions.Admin, permissions.Moderator, permissions.User, permissions.None} {
		if h := factory.CreateHandler(access); !h.CanHandle(access) {
			t.Errorf("handler for %s cannot handle it", access)
		}
	}
	if factory.CreateHandler(permissions.Moderator).CanHandle(permissions.Admin) {
		t.Error("moderator handler must not handle admins")
	}
}

func TestAdminHandler_DecidesRequestOnce(t *testing.T) {
	env := newTestEnv(t, newFakePanel())
	ctx := context.Background()
	env.link(t, "alice", 100)
	id, err := env.svc.Store.CreateRequest(ctx, 100, "more traffic please")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	h := NewAdminHandler(permissions.Moderator, env.svc, env.cfg, env.logger)

	c := callbackUpdate(adminID, commands.Data(commands.ApproveRequest, id))
	handle(t, h, c)
	if !strings.Contains(c.last(), "approved") {
		t.Fatalf("unexpected reply %q", c.last())
	}

	again := callbackUpdate(adminID, commands.Data(commands.RejectRequest, id))
	handle(t, h, again)
	if !strings.Contains(again.last(), "already processed") {
		t.Fatalf("second decision should be refused, got %q", again.last())
	}

	req, err := env.svc.Store.GetRequest(ctx, id)
	if err != nil || req == nil {
		t.Fatalf("get request: %v", err)
	}
	if req.Status != models.RequestApproved {
		t.Fatalf("status = %s, want approved", req.Status)
	}
	if got := env.notifier.to(100); len(got) != 1 || !strings.Contains(got[0], "approved") {
		t.Fatalf("author notifications = %v", got)
	}
}

func TestAdminHandler_RequestListPages(t *testing.T) {
	env := newTestEnv(t, newFakePanel())
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := env.svc.Store.CreateRequest(ctx, 100, fmt.Sprintf("request %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	h := NewAdminHandler(permissions.Admin, env.svc, env.cfg, env.logger)
	c := callbackUpdate(adminID, commands.NavRequests)
	handle(t, h, c)
	if !strings.Contains(c.last(), "(10)") {
		t.Fatalf("unexpected list header %q", c.last())
	}
}

func TestAdminHandler_ModeratorCannotOpenAdminSections(t *testing.T) {
	env := newTestEnv(t, newFakePanel("alice"))
	h := NewAdminHandler(permissions.Moderator, env.svc, env.cfg, env.logger)

	for _, data := range []string{commands.NavUsers, commands.NavBroadcast, commands.MarzbanMain, commands.Data(commands.MarzbanDeleteConfirm, "alice")} {
		c := callbackUpdate(50, data)
		handle(t, h, c)
		if len(c.messages) != 0 {
			t.Errorf("%s: moderator got a reply %q", data, c.last())
		}
		if len(c.responses) != 1 || !c.responses[0].ShowAlert {
			t.Errorf("%s: expected an alert, got %+v", data, c.responses)
		}
	}
	if _, ok := env.panel.users["alice"]; !ok {
		t.Fatal("moderator must not delete panel users")
	}
}

func TestAdminHandler_BroadcastFlow(t *testing.T) {
	env := newTestEnv(t, newFakePanel())
	env.link(t, "alice", 100)
	env.link(t, "bob", 200)
	h := NewAdminHandler(permissions.Admin, env.svc, env.cfg, env.logger)

	handle(t, h, callbackUpdate(adminID, commands.NavBroadcast))
	if got := env.state(t, adminID); got != models.AwaitBroadcastMessage {
		t.Fatalf("state = %s", got)
	}

	preview := textUpdate(adminID, "maintenance tonight")
	handle(t, h, preview)
	if got := env.state(t, adminID); got != models.AwaitBroadcastConfirm {
		t.Fatalf("state = %s", got)
	}
	if !strings.Contains(preview.last(), "Recipients: 2") {
		t.Fatalf("unexpected preview %q", preview.last())
	}

	confirm := callbackUpdate(adminID, commands.ConfirmBroadcast)
	handle(t, h, confirm)
	if !strings.Contains(confirm.last(), "Delivered: 2/2") {
		t.Fatalf("unexpected result %q", confirm.last())
	}
	for _, id := range []int64{100, 200} {
		if got := env.notifier.to(id); len(got) != 1 || got[0] != "maintenance tonight" {
			t.Errorf("user %d got %v", id, got)
		}
	}
	if got := env.state(t, adminID); got != models.Default {
		t.Fatalf("state after broadcast = %s", got)
	}

	stale := callbackUpdate(adminID, commands.ConfirmBroadcast)
	handle(t, h, stale)
	if !strings.Contains(stale.last(), "Nothing to send") {
		t.Fatalf("a second confirm must not resend, got %q", stale.last())
	}
}

func TestAdminHandler_BanWithReason(t *testing.T) {
	env := newTestEnv(t, newFakePanel())
	ctx := context.Background()
	env.link(t, "bob", 200)
	h := NewAdminHandler(permissions.Admin, env.svc, env.cfg, env.logger)

	handle(t, h, callbackUpdate(adminID, commands.Data(commands.BanUser, "bob")))
	if got := env.state(t, adminID); got != models.AwaitBanReason {
		t.Fatalf("state = %s", got)
	}

	handle(t, h, textUpdate(adminID, "spam"))

	user, err := env.svc.Store.GetUser(ctx, 200)
	if err != nil || user == nil {
		t.Fatalf("get user: %v", err)
	}
	if !user.IsBanned || user.BanReason == nil || *user.BanReason != "spam" {
		t.Fatalf("unexpected ban state %+v", user)
	}
	if got := env.notifier.to(200); len(got) != 1 || !strings.Contains(got[0], "spam") {
		t.Fatalf("ban notice = %v", got)
	}

	handle(t, h, callbackUpdate(adminID, commands.Data(commands.UnbanUser, "bob")))
	if banned, _ := env.svc.Store.IsBanned(ctx, 200); banned {
		t.Fatal("user still banned")
	}
}

func TestAdminHandler_ConfiguredAdminIsProtected(t *testing.T) {
	env := newTestEnv(t, newFakePanel())
	env.link(t, "root", adminID)
	h := NewAdminHandler(permissions.Admin, env.svc, env.cfg, env.logger)

	c := callbackUpdate(99, commands.Data(commands.BanUser, "root"))
	handle(t, h, c)
	if !strings.Contains(c.last(), "cannot be moderated") {
		t.Fatalf("unexpected reply %q", c.last())
	}
	if got := env.state(t, 99); got != models.Default {
		t.Fatalf("state = %s", got)
	}
}

func TestAdminHandler_PromoteModerator(t *testing.T) {
	env := newTestEnv(t, newFakePanel())
	env.link(t, "carol", 300)
	h := NewAdminHandler(permissions.Admin, env.svc, env.cfg, env.logger)

	handle(t, h, callbackUpdate(adminID, commands.Data(commands.PromoteModerator, "carol")))
	if ok, _ := env.svc.Store.IsModerator(context.Background(), 300); !ok {
		t.Fatal("carol should be a moderator")
	}

	handle(t, h, callbackUpdate(adminID, commands.Data(commands.DemoteModerator, "carol")))
	if ok, _ := env.svc.Store.IsModerator(context.Background(), 300); ok {
		t.Fatal("carol should no longer be a moderator")
	}
}

func TestAdminHandler_CreatePanelUser(t *testing.T) {
	env := newTestEnv(t, newFakePanel())
	h := NewAdminHandler(permissions.Admin, env.svc, env.cfg, env.logger)

	handle(t, h, callbackUpdate(adminID, commands.MarzbanCreate))

	bad := textUpdate(adminID, "x")
	handle(t, h, bad)
	if !strings.Contains(bad.last(), "Try again") {
		t.Fatalf("unexpected reply %q", bad.last())
	}
	if got := env.state(t, adminID); got != models.AwaitPanelUsername {
		t.Fatalf("invalid input must keep the conversation, state = %s", got)
	}

	ok := textUpdate(adminID, "Dave 30 10")
	handle(t, h, ok)
	if !strings.Contains(ok.last(), "User created") {
		t.Fatalf("unexpected reply %q", ok.last())
	}
	if len(env.panel.created) != 1 || env.panel.created[0]["username"] != "dave" {
		t.Fatalf("panel calls = %v", env.panel.created)
	}

	user, err := env.svc.Store.GetUserByUsername(context.Background(), "dave")
	if err != nil || user == nil {
		t.Fatalf("pending user not recorded: %v", err)
	}
	if user.TelegramID != nil {
		t.Fatalf("new user must be pending, got %d", *user.TelegramID)
	}
}

func TestAdminHandler_LinkPanelUser(t *testing.T) {
	env := newTestEnv(t, newFakePanel("erin"))
	h := NewAdminHandler(permissions.Admin, env.svc, env.cfg, env.logger)

	handle(t, h, callbackUpdate(adminID, commands.Data(commands.MarzbanLink, "erin")))

	bad := textUpdate(adminID, "not-a-number")
	handle(t, h, bad)
	if got := env.state(t, adminID); got != models.AwaitLinkTelegramID {
		t.Fatalf("state = %s", got)
	}

	handle(t, h, textUpdate(adminID, "400"))
	id, err := env.svc.Store.GetTelegramID(context.Background(), "erin")
	if err != nil || id == nil || *id != 400 {
		t.Fatalf("link not stored: %v %v", id, err)
	}
	if got := env.notifier.to(400); len(got) != 1 {
		t.Fatalf("linked user notices = %v", got)
	}
}

func TestAdminHandler_ResetAndDeletePanelUser(t *testing.T) {
	env := newTestEnv(t, newFakePanel("frank"))
	env.link(t, "frank", 500)
	h := NewAdminHandler(permissions.Admin, env.svc, env.cfg, env.logger)

	reset := callbackUpdate(adminID, commands.Data(commands.MarzbanReset, "frank"))
	handle(t, h, reset)
	if len(env.panel.resets) != 1 || !strings.Contains(reset.last(), "Traffic reset") {
		t.Fatalf("reset calls %v, reply %q", env.panel.resets, reset.last())
	}

	handle(t, h, callbackUpdate(adminID, commands.Data(commands.MarzbanDelete, "frank")))
	if _, ok := env.panel.users["frank"]; !ok {
		t.Fatal("delete must wait for confirmation")
	}

	handle(t, h, callbackUpdate(adminID, commands.Data(commands.MarzbanDeleteConfirm, "frank")))
	if _, ok := env.panel.users["frank"]; ok {
		t.Fatal("frank still on the panel")
	}
	if user, _ := env.svc.Store.GetUserByUsername(context.Background(), "frank"); user != nil {
		t.Fatal("local link not removed")
	}
}

func TestUserHandler_ShowSubscription(t *testing.T) {
	env := newTestEnv(t, newFakePanel("alice"))
	env.link(t, "alice", 100)
	h := NewUserHandler(env.svc, env.cfg, env.logger)

	c := callbackUpdate(100, commands.UserSubscription)
	handle(t, h, c)
	if !strings.Contains(c.last(), "alice") || !strings.Contains(c.last(), "https://panel/sub/alice") {
		t.Fatalf("unexpected subscription text %q", c.last())
	}
	if len(c.responses) != 1 {
		t.Fatalf("callback must be answered once, got %d", len(c.responses))
	}

	qr := callbackUpdate(100, commands.UserQR)
	handle(t, h, qr)
	if qr.photos != 1 {
		t.Fatalf("expected a QR photo, got %d", qr.photos)
	}
}

func TestUserHandler_MissingPanelUser(t *testing.T) {
	env := newTestEnv(t, newFakePanel())
	env.link(t, "ghost", 100)
	h := NewUserHandler(env.svc, env.cfg, env.logger)

	c := callbackUpdate(100, commands.UserSubscription)
	handle(t, h, c)
	if !strings.Contains(c.last(), "not found on the server") {
		t.Fatalf("unexpected reply %q", c.last())
	}
}

func TestUserHandler_TransferSubscription(t *testing.T) {
	env := newTestEnv(t, newFakePanel("alice"))
	env.link(t, "alice", 100)
	h := NewUserHandler(env.svc, env.cfg, env.logger)

	handle(t, h, callbackUpdate(100, commands.UserTransfer))
	if got := env.state(t, 100); got != models.AwaitTransferID {
		t.Fatalf("state = %s", got)
	}

	for _, input := range []string{"abc", "-5", "100"} {
		c := textUpdate(100, input)
		handle(t, h, c)
		if !strings.Contains(c.last(), "Try again") {
			t.Errorf("%q: unexpected reply %q", input, c.last())
		}
		if got := env.state(t, 100); got != models.AwaitTransferID {
			t.Errorf("%q: state = %s", input, got)
		}
	}

	done := textUpdate(100, "555")
	handle(t, h, done)
	if !strings.Contains(done.last(), "transferred") {
		t.Fatalf("unexpected reply %q", done.last())
	}

	ctx := context.Background()
	if name, _ := env.svc.Store.GetMarzbanUsername(ctx, 555); name == nil || *name != "alice" {
		t.Fatalf("new owner not linked: %v", name)
	}
	if name, _ := env.svc.Store.GetMarzbanUsername(ctx, 100); name != nil {
		t.Fatalf("old owner still linked to %s", *name)
	}
	if got := env.notifier.to(555); len(got) != 1 {
		t.Fatalf("new owner notices = %v", got)
	}
	if got := env.state(t, 100); got != models.Default {
		t.Fatalf("state after transfer = %s", got)
	}
}

func TestGuestHandler_ContactAdmins(t *testing.T) {
	env := newTestEnv(t, newFakePanel())
	h := NewGuestHandler(env.svc, env.cfg, env.logger)

	welcome := textUpdate(900, commands.Start)
	handle(t, h, welcome)
	if !strings.Contains(welcome.last(), "<code>900</code>") {
		t.Fatalf("guest must see their Telegram ID, got %q", welcome.last())
	}

	handle(t, h, callbackUpdate(900, commands.UserRequest))
	sent := textUpdate(900, "  please give me access  ")
	handle(t, h, sent)
	if !strings.Contains(sent.last(), "#1") {
		t.Fatalf("unexpected reply %q", sent.last())
	}

	reqs, err := env.svc.Store.GetRequests(context.Background(), models.RequestPending)
	if err != nil || len(reqs) != 1 {
		t.Fatalf("requests = %v, %v", reqs, err)
	}
	if reqs[0].UserID != 900 || reqs[0].Text != "please give me access" {
		t.Fatalf("unexpected request %+v", reqs[0])
	}
	if got := env.notifier.to(adminID); len(got) != 1 || !strings.Contains(got[0], "please give me access") {
		t.Fatalf("staff notices = %v", got)
	}
}
