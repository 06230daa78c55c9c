package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"meb-console/internal/account"
	"meb-console/internal/ledger"
	"meb-console/internal/model"
	"meb-console/internal/recorder"
	"meb-console/internal/secure"
)

type sentMessage struct {
	chatID    int64
	messageID int
	text      string
	keyboard  *Keyboard
}

type fakeTransport struct {
	mu      sync.Mutex
	nextID  int
	sent    []sentMessage
	edits   []sentMessage
	deleted []int
	docs    []sentMessage
}

func (f *fakeTransport) SendMessage(chatID int64, text string, keyboard *Keyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentMessage{chatID: chatID, messageID: f.nextID, text: text, keyboard: keyboard})
	return f.nextID, nil
}

func (f *fakeTransport) EditMessage(chatID int64, messageID int, text string, keyboard *Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMessage{chatID: chatID, messageID: messageID, text: text, keyboard: keyboard})
	return nil
}

func (f *fakeTransport) DeleteMessage(chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeTransport) SendDocument(chatID int64, filePath, caption string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.docs = append(f.docs, sentMessage{chatID: chatID, messageID: f.nextID, text: filePath})
	return f.nextID, nil
}

func (f *fakeTransport) AnswerCallback(callbackID, text string) error { return nil }

func (f *fakeTransport) lastSent() (sentMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func (f *fakeTransport) wasDeleted(messageID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.deleted {
		if id == messageID {
			return true
		}
	}
	return false
}

func (f *fakeTransport) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

type testValues map[string]interface{}

func (v testValues) Get(path string) (interface{}, bool) {
	value, ok := v[path]
	return value, ok
}

type fixture struct {
	engine    *Engine
	transport *fakeTransport
	accounts  *account.Store
	ledger    *ledger.Ledger
	logDir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := secure.NormalizeKey("bot-test-key")
	if err != nil {
		t.Fatalf("NormalizeKey: %v", err)
	}

	base := t.TempDir()
	logDir := filepath.Join(base, "saved_datas")
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	accounts := account.Open(filepath.Join(base, "operators.bin"), key)
	l := ledger.Open(filepath.Join(base, "refs.bin"), key)
	rec := recorder.New(logDir, 10*time.Millisecond, testValues{}, l)
	transport := &fakeTransport{}

	engine := New(Options{
		Transport:        transport,
		Accounts:         accounts,
		Ledger:           l,
		Recorder:         rec,
		Values:           testValues{"navigation.position": map[string]interface{}{"latitude": 38.1, "longitude": 15.3}},
		LogDir:           logDir,
		CountdownSeconds: 2,
		CountdownTick:    5 * time.Millisecond,
		NoticeDelay:      5 * time.Millisecond,
		LiveInterval:     5 * time.Millisecond,
	})
	return &fixture{engine: engine, transport: transport, accounts: accounts, ledger: l, logDir: logDir}
}

func (fx *fixture) loginChat(t *testing.T, chatID int64) {
	t.Helper()
	op := fx.accounts.Provision(chatID)
	fx.engine.HandleMessage(chatID, "/login "+op.AccessToken)
	if !fx.accounts.IsAuthenticated(chatID) {
		t.Fatalf("login failed")
	}
}

// addSealedLog creates an encrypted log file on disk and registers it.
func (fx *fixture) addSealedLog(t *testing.T, name, token string) {
	t.Helper()
	path := filepath.Join(fx.logDir, name)
	if err := os.WriteFile(path, []byte("timestamp\nrow\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := secure.EncryptFile(path, token); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}
	if err := fx.ledger.Append(model.Reference{Name: name, Token: token}); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestEngine_UnauthenticatedFileBrowserLeaksNothing(t *testing.T) {
	fx := newFixture(t)
	fx.addSealedLog(t, "log_secret.csv", "tok")

	fx.engine.HandleMessage(1, "Log Files")

	msg, ok := fx.transport.lastSent()
	if !ok {
		t.Fatalf("expected a reply")
	}
	if msg.text != loginPrompt {
		t.Fatalf("expected login prompt, got %q", msg.text)
	}
	if strings.Contains(msg.text, "log_secret") || msg.keyboard != nil {
		t.Fatalf("file information leaked to unauthenticated chat")
	}
}

func TestEngine_LoginLogout(t *testing.T) {
	fx := newFixture(t)

	fx.engine.HandleMessage(1, "/login bad-token")
	msg, _ := fx.transport.lastSent()
	if msg.text != "Invalid or revoked token." {
		t.Fatalf("expected generic denial, got %q", msg.text)
	}

	fx.loginChat(t, 1)
	fx.engine.HandleMessage(1, "/logout")
	if fx.accounts.IsAuthenticated(1) {
		t.Fatalf("still authenticated after logout")
	}
}

func TestEngine_FileBrowserListsOnlyRegistered(t *testing.T) {
	fx := newFixture(t)
	fx.loginChat(t, 1)
	fx.addSealedLog(t, "log_a.csv", "ta")

	// On disk but not in the ledger: must stay invisible.
	if err := os.WriteFile(filepath.Join(fx.logDir, "log_orphan.csv"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fx.engine.HandleMessage(1, "Log Files")
	msg, _ := fx.transport.lastSent()
	if msg.keyboard == nil {
		t.Fatalf("expected file keyboard")
	}
	var labels []string
	for _, row := range msg.keyboard.Inline {
		for _, b := range row {
			labels = append(labels, b.Text)
		}
	}
	joined := strings.Join(labels, " ")
	if !strings.Contains(joined, "log_a.csv") {
		t.Fatalf("registered file missing: %v", labels)
	}
	if strings.Contains(joined, "orphan") {
		t.Fatalf("unregistered file visible: %v", labels)
	}
}

func TestPaginate_Boundaries(t *testing.T) {
	files := make([]string, 17)
	for i := range files {
		files[i] = fmt.Sprintf("f%02d", i)
	}

	page, current, total := paginate(files, 0, 8)
	if len(page) != 8 || current != 0 || total != 3 {
		t.Fatalf("page 0: len=%d current=%d total=%d", len(page), current, total)
	}
	page, current, _ = paginate(files, 2, 8)
	if len(page) != 1 || current != 2 {
		t.Fatalf("page 2: len=%d current=%d", len(page), current)
	}
	_, current, _ = paginate(files, -1, 8)
	if current != 0 {
		t.Fatalf("page -1 clamped to %d", current)
	}
	page, current, _ = paginate(files, 99, 8)
	if current != 2 || len(page) != 1 {
		t.Fatalf("page 99 clamped to %d len=%d", current, len(page))
	}
	if _, _, total := paginate(nil, 0, 8); total != 0 {
		t.Fatalf("empty list total=%d", total)
	}
}

func TestEngine_DownloadFlow(t *testing.T) {
	fx := newFixture(t)
	fx.loginChat(t, 1)
	fx.addSealedLog(t, "log_a.csv", "old-token")

	fx.engine.HandleCallback(Callback{ID: "cb1", ChatID: 1, MessageID: 50, Data: "request_file_log_a.csv"})
	fx.engine.HandleCallback(Callback{ID: "cb2", ChatID: 1, MessageID: 50, Data: "download_log_a.csv"})

	deadline := time.Now().Add(5 * time.Second)
	var docID int
	for time.Now().Before(deadline) {
		fx.transport.mu.Lock()
		if len(fx.transport.docs) == 1 {
			docID = fx.transport.docs[0].messageID
		}
		fx.transport.mu.Unlock()
		if docID != 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if docID == 0 {
		t.Fatalf("document never sent")
	}

	// Countdown expiry removes the document and leaves a terminal notice
	// that is itself removed.
	for time.Now().Before(deadline) {
		if fx.transport.wasDeleted(docID) && fx.transport.wasDeleted(50) {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !fx.transport.wasDeleted(docID) {
		t.Fatalf("delivered document not removed after countdown")
	}
	if !fx.transport.wasDeleted(50) {
		t.Fatalf("terminal notice not auto-removed")
	}

	// Credential rotated: the old token is burned, the ledger token opens
	// the file.
	ref, ok := fx.ledger.Find("log_a.csv")
	if !ok {
		t.Fatalf("ledger entry missing")
	}
	if ref.Token == "old-token" {
		t.Fatalf("token not rotated")
	}
	if _, err := secure.DecryptFile(filepath.Join(fx.logDir, "log_a.csv"), "old-token"); err == nil {
		t.Fatalf("old token still decrypts file")
	}
	if _, err := secure.DecryptFile(filepath.Join(fx.logDir, "log_a.csv"), ref.Token); err != nil {
		t.Fatalf("rotated token does not decrypt file: %v", err)
	}
}

func TestEngine_DownloadRotationFailureWarns(t *testing.T) {
	fx := newFixture(t)
	fx.loginChat(t, 1)
	fx.addSealedLog(t, "log_a.csv", "real-token")

	// Ledger carries a stale token: delivery continues, rotation is skipped.
	if !fx.ledger.Replace("log_a.csv", model.Reference{Name: "log_a.csv", Token: "stale"}) {
		t.Fatalf("Replace failed")
	}

	fx.engine.HandleCallback(Callback{ID: "cb", ChatID: 1, MessageID: 60, Data: "download_log_a.csv"})

	deadline := time.Now().Add(5 * time.Second)
	warned := false
	for time.Now().Before(deadline) && !warned {
		fx.transport.mu.Lock()
		for _, m := range fx.transport.sent {
			if strings.Contains(m.text, "could not be rotated") {
				warned = true
			}
		}
		fx.transport.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	if !warned {
		t.Fatalf("no rotation warning surfaced")
	}

	ref, _ := fx.ledger.Find("log_a.csv")
	if ref.Token != "stale" {
		t.Fatalf("token rotated despite failed decrypt")
	}
	if _, err := secure.DecryptFile(filepath.Join(fx.logDir, "log_a.csv"), "real-token"); err != nil {
		t.Fatalf("file mutated despite failed decrypt: %v", err)
	}
}

func TestEngine_LiveSubscriptionEditsInPlace(t *testing.T) {
	fx := newFixture(t)
	fx.loginChat(t, 1)

	fx.engine.HandleCallback(Callback{ID: "cb", ChatID: 1, MessageID: 70, Data: "get_position"})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if fx.transport.editCount() >= 2 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if fx.transport.editCount() < 2 {
		t.Fatalf("subscription did not re-render")
	}

	fx.transport.mu.Lock()
	first := fx.transport.edits[0]
	fx.transport.mu.Unlock()
	if first.messageID != 70 || !strings.Contains(first.text, "Latitude: 38.1") {
		t.Fatalf("unexpected render %+v", first)
	}

	fx.engine.HandleCallback(Callback{ID: "cb", ChatID: 1, MessageID: 70, Data: "dismiss_and_unsubscribe"})
	time.Sleep(20 * time.Millisecond)
	count := fx.transport.editCount()
	time.Sleep(30 * time.Millisecond)
	if fx.transport.editCount() != count {
		t.Fatalf("subscription kept rendering after dismiss")
	}
}

func TestEngine_UnauthenticatedParameterMenu(t *testing.T) {
	fx := newFixture(t)
	fx.engine.HandleMessage(1, "Onboard Parameters")
	msg, _ := fx.transport.lastSent()
	if msg.text != loginPrompt {
		t.Fatalf("expected login prompt, got %q", msg.text)
	}
}

func TestEngine_OverrideLoginProvisions(t *testing.T) {
	fx := newFixture(t)
	fx.engine.HandleMessage(5, "/override_login")
	msg, _ := fx.transport.lastSent()
	if !strings.Contains(msg.text, "Pre-token generated") {
		t.Fatalf("unexpected reply %q", msg.text)
	}

	op, ok := fx.accounts.FindByToken(strings.TrimSpace(strings.Split(msg.text, "\n")[1]))
	if !ok || op.ChatID != 5 {
		t.Fatalf("provisioned token not stored")
	}
}

func TestEngine_BroadcastReachesLoggedInOnly(t *testing.T) {
	fx := newFixture(t)
	fx.loginChat(t, 1)
	fx.accounts.Provision(2)

	fx.transport.mu.Lock()
	fx.transport.sent = nil
	fx.transport.mu.Unlock()

	fx.engine.Broadcast("back online")

	fx.transport.mu.Lock()
	defer fx.transport.mu.Unlock()
	if len(fx.transport.sent) != 1 || fx.transport.sent[0].chatID != 1 {
		t.Fatalf("unexpected broadcast set %+v", fx.transport.sent)
	}
}
