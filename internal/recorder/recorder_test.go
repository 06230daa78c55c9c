package recorder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meb-console/internal/ledger"
	"meb-console/internal/secure"
)

type fakeValues map[string]interface{}

func (f fakeValues) Get(path string) (interface{}, bool) {
	v, ok := f[path]
	return v, ok
}

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	key, err := secure.NormalizeKey("recorder-test-key")
	if err != nil {
		t.Fatalf("NormalizeKey: %v", err)
	}
	return ledger.Open(filepath.Join(t.TempDir(), "refs.bin"), key)
}

func waitRows(t *testing.T, r *Recorder, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.Status().RowCount >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never reached %d rows", want)
}

func TestRecorder_SessionLifecycle(t *testing.T) {
	dir := t.TempDir()
	l := testLedger(t)
	values := fakeValues{
		"navigation.speedOverGround": 4.2,
		"meb.temperature":            21.5,
		"navigation.position":        map[string]interface{}{"latitude": 38.1, "longitude": 15.3},
	}
	r := New(dir, 10*time.Millisecond, values, l)

	if !r.Start() {
		t.Fatalf("Start returned false")
	}
	if r.Start() {
		t.Fatalf("second Start must be a no-op returning false")
	}

	waitRows(t, r, 3)
	status := r.Status()
	if !status.Recording || status.IntervalMs != 10 {
		t.Fatalf("unexpected status %+v", status)
	}

	if !r.Stop() {
		t.Fatalf("Stop returned false")
	}
	rows := status.RowCount

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(entries))
	}
	name := entries[0].Name()

	ref, ok := l.Find(name)
	if !ok {
		t.Fatalf("ledger missing entry for %s", name)
	}

	plaintext, err := secure.DecryptFile(filepath.Join(dir, name), ref.Token)
	if err != nil {
		t.Fatalf("DecryptFile with ledger token: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(plaintext), "\n"), "\n")
	if !strings.HasPrefix(lines[0], "timestamp,wavesHeight") {
		t.Fatalf("missing header row: %q", lines[0])
	}
	if len(lines)-1 < rows {
		t.Fatalf("expected at least %d data rows, got %d", rows, len(lines)-1)
	}
	if !strings.Contains(lines[1], ",4.2,") {
		t.Fatalf("sampled value missing from row %q", lines[1])
	}
	if !strings.HasSuffix(lines[1], ",38.1,15.3") {
		t.Fatalf("position fields missing from row %q", lines[1])
	}
}

func TestRecorder_AbsentValuesRenderEmpty(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 10*time.Millisecond, fakeValues{}, testLedger(t))

	if !r.Start() {
		t.Fatalf("Start returned false")
	}
	waitRows(t, r, 1)
	r.Stop()

	entries, _ := os.ReadDir(dir)
	ref, _ := testRefFor(t, r, entries[0].Name())
	plaintext, err := secure.DecryptFile(filepath.Join(dir, entries[0].Name()), ref)
	if err != nil {
		t.Fatalf("DecryptFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(plaintext), "\n"), "\n")
	fields := strings.Split(lines[1], ",")
	wantFields := len(strings.Split(lines[0], ","))
	if len(fields) != wantFields {
		t.Fatalf("expected %d fields, got %d", wantFields, len(fields))
	}
	for i, f := range fields[1:] {
		if f != "" {
			t.Fatalf("field %d not empty: %q", i+1, f)
		}
	}
}

func testRefFor(t *testing.T, r *Recorder, name string) (string, bool) {
	t.Helper()
	ref, ok := r.ledger.Find(name)
	if !ok {
		t.Fatalf("ledger missing %s", name)
	}
	return ref.Token, ok
}

func TestRecorder_StopWhenIdle(t *testing.T) {
	r := New(t.TempDir(), 10*time.Millisecond, fakeValues{}, testLedger(t))
	if r.Stop() {
		t.Fatalf("Stop on idle recorder must return false")
	}
	status := r.Status()
	if status.Recording || status.RowCount != 0 {
		t.Fatalf("unexpected idle status %+v", status)
	}
}

func TestRecorder_NameCollisionAbortsStart(t *testing.T) {
	dir := t.TempDir()
	l := testLedger(t)
	r := New(dir, 10*time.Millisecond, fakeValues{}, l)
	frozen := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return frozen }

	if !r.Start() {
		t.Fatalf("Start returned false")
	}
	waitRows(t, r, 1)
	if !r.Stop() {
		t.Fatalf("Stop returned false")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 sealed file, got %d", len(entries))
	}
	name := entries[0].Name()
	sealed, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	// Same clock, same name: the sealed file must survive untouched and the
	// recorder must stay idle.
	if r.Start() {
		t.Fatalf("Start must fail when the file name already exists")
	}
	if r.Status().Recording {
		t.Fatalf("recorder must remain idle after an aborted start")
	}

	after, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(after) != string(sealed) {
		t.Fatalf("sealed envelope was modified by the aborted start")
	}
	ref, _ := l.Find(name)
	if _, err := secure.DecryptFile(filepath.Join(dir, name), ref.Token); err != nil {
		t.Fatalf("ledger token no longer decrypts the sealed file: %v", err)
	}
}

func TestRecorder_RestartCreatesNewFile(t *testing.T) {
	dir := t.TempDir()
	l := testLedger(t)
	r := New(dir, 10*time.Millisecond, fakeValues{}, l)

	if !r.Start() {
		t.Fatalf("Start returned false")
	}
	waitRows(t, r, 1)
	time.Sleep(2 * time.Millisecond) // distinct timestamp-derived names
	if !r.Restart() {
		t.Fatalf("Restart returned false")
	}
	waitRows(t, r, 1)
	r.Stop()

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("expected 2 log files after restart, got %d", len(entries))
	}
	if len(l.Names()) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(l.Names()))
	}
}
