package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"github.com/mcdonaldj/flatarc/internal/archive"
	"github.com/mcdonaldj/flatarc/internal/format"
)

// fakeArchive keeps records in memory and mimics extract and compact.
type fakeArchive struct {
	entries []archive.Entry
	report  archive.VerifyReport
	errors  map[string]error

	extracted []string
	compacts  int
}

func newFakeArchive(entries ...archive.Entry) *fakeArchive {
	return &fakeArchive{entries: entries, errors: make(map[string]error)}
}

func (f *fakeArchive) Scan(ctx context.Context) ([]archive.Entry, error) {
	if err := f.errors["Scan"]; err != nil {
		return nil, err
	}
	out := make([]archive.Entry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeArchive) Extract(ctx context.Context, target string) (archive.ExtractResult, error) {
	f.extracted = append(f.extracted, target)
	if err := f.errors["Extract"]; err != nil {
		return archive.ExtractResult{Found: true}, err
	}
	for i, e := range f.entries {
		if e.Path == target && !e.Deleted {
			f.entries = append(f.entries[:i:i], f.entries[i+1:]...)
			return archive.ExtractResult{Found: true, Entry: e, Compacted: true}, nil
		}
	}
	return archive.ExtractResult{}, nil
}

func (f *fakeArchive) Compact(ctx context.Context) (archive.CompactResult, error) {
	f.compacts++
	if err := f.errors["Compact"]; err != nil {
		return archive.CompactResult{}, err
	}
	kept := f.entries[:0:0]
	var res archive.CompactResult
	for _, e := range f.entries {
		res.BytesBefore += e.Len()
		if e.Deleted {
			res.Dropped++
			continue
		}
		res.Kept++
		res.BytesAfter += e.Len()
		kept = append(kept, e)
	}
	f.entries = kept
	return res, nil
}

func (f *fakeArchive) Verify(ctx context.Context) (archive.VerifyReport, error) {
	return f.report, f.errors["Verify"]
}

func entry(path string, size int64, deleted bool) archive.Entry {
	return archive.Entry{Record: format.Record{
		Path:    path,
		Meta:    format.Metadata{Mode: 0100644, Size: size, MTime: time.Unix(1700000000, 0)},
		Deleted: deleted,
	}}
}

func newTestModel(t *testing.T, arc *fakeArchive) *Model {
	t.Helper()
	m, err := NewModel(context.Background(), arc, "test.farc", "")
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	return m
}

func press(m *Model, msg tea.KeyMsg) (*Model, tea.Cmd) {
	updated, cmd := m.Update(msg)
	return updated.(*Model), cmd
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// finish runs an async command and feeds its message back into the model.
func finish(t *testing.T, m *Model, cmd tea.Cmd) *Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	updated, _ := m.Update(cmd())
	return updated.(*Model)
}

func TestNewModelLoadsRecords(t *testing.T) {
	arc := newFakeArchive(entry("a.txt", 10, false), entry("b.txt", 20, true), entry("c.txt", 30, false))
	m := newTestModel(t, arc)

	if len(m.entries) != 3 {
		t.Errorf("entries = %d, expected 3", len(m.entries))
	}
	if rows := m.rows(); len(rows) != 2 {
		t.Errorf("visible rows = %d, expected 2", len(rows))
	}
	if m.view != RecordsView {
		t.Errorf("view = %v, expected RecordsView", m.view)
	}
}

func TestNewModelScanError(t *testing.T) {
	arc := newFakeArchive()
	arc.errors["Scan"] = errors.New("archive is corrupt")

	if _, err := NewModel(context.Background(), arc, "test.farc", ""); err == nil {
		t.Error("NewModel should fail when the archive cannot be read")
	}
}

func TestModelNavigation(t *testing.T) {
	m := newTestModel(t, newFakeArchive(entry("a", 1, false), entry("b", 1, false), entry("c", 1, false)))

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyDown})
	if m.cursor != 1 {
		t.Errorf("cursor = %d, expected 1", m.cursor)
	}

	m, _ = press(m, runeKey('j'))
	m, _ = press(m, runeKey('j'))
	if m.cursor != 2 {
		t.Errorf("cursor = %d, expected 2 (at boundary)", m.cursor)
	}

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyUp})
	m, _ = press(m, runeKey('k'))
	m, _ = press(m, runeKey('k'))
	if m.cursor != 0 {
		t.Errorf("cursor = %d, expected 0 (at boundary)", m.cursor)
	}
}

func TestToggleDeleted(t *testing.T) {
	m := newTestModel(t, newFakeArchive(entry("a", 1, true), entry("b", 1, false)))

	if rows := m.rows(); len(rows) != 1 || rows[0].Path != "b" {
		t.Fatalf("rows = %+v, expected only b", rows)
	}

	m, _ = press(m, runeKey('r'))
	if !m.showDeleted || len(m.rows()) != 2 {
		t.Errorf("raw view should show both records")
	}
	if !strings.Contains(m.View(), "(all records)") {
		t.Error("title should mark the raw view")
	}

	m, _ = press(m, runeKey('r'))
	if m.showDeleted {
		t.Error("second r should hide deleted records again")
	}
}

func TestDetailView(t *testing.T) {
	e := entry("docs/readme.txt", 1536, false)
	e.Digest = [format.DigestSize]byte{0xde, 0xad}
	m := newTestModel(t, newFakeArchive(e))

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.view != DetailView {
		t.Fatalf("view = %v, expected DetailView", m.view)
	}

	view := m.View()
	for _, want := range []string{"docs/readme.txt", "1536 bytes", "0644", "dead0000", "live"} {
		if !strings.Contains(view, want) {
			t.Errorf("detail view missing %q", want)
		}
	}

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.view != RecordsView {
		t.Errorf("esc should return to the list, view = %v", m.view)
	}
}

func TestDetailViewOnEmptyArchive(t *testing.T) {
	m := newTestModel(t, newFakeArchive())

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.view != RecordsView {
		t.Error("enter on an empty list should stay in the list")
	}
	if !strings.Contains(m.View(), "Archive is empty") {
		t.Error("empty archive should say so")
	}
}

func TestExtractSelected(t *testing.T) {
	arc := newFakeArchive(entry("a.txt", 10, false), entry("b.txt", 2048, false))
	m := newTestModel(t, arc)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := press(m, runeKey('e'))
	if !m.busy {
		t.Error("model should be busy while extracting")
	}
	if !strings.Contains(m.View(), "Working...") {
		t.Error("busy model should show progress")
	}

	m = finish(t, m, cmd)
	if len(arc.extracted) != 1 || arc.extracted[0] != "b.txt" {
		t.Errorf("extracted = %v, expected [b.txt]", arc.extracted)
	}
	if m.busy {
		t.Error("busy should clear once the result arrives")
	}
	if !strings.Contains(m.statusMsg, "Extracted b.txt (2.0 KB)") || m.statusKind != statusOK {
		t.Errorf("status = %q (%v)", m.statusMsg, m.statusKind)
	}
	if len(m.rows()) != 1 || m.cursor != 0 {
		t.Errorf("rows = %d, cursor = %d after reload", len(m.rows()), m.cursor)
	}
}

func TestExtractOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind statusKind
		wantMsg  string
	}{
		{"too large", &archive.OpError{Op: "extract", Kind: archive.ErrTooLarge}, statusWarn, "above the extract size limit"},
		{"corrupt", &archive.OpError{Op: "extract", Kind: archive.ErrCorruption, Err: errors.New("payload digest mismatch")}, statusErr, "Extract failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arc := newFakeArchive(entry("a.txt", 10, false))
			arc.errors["Extract"] = tt.err
			m := newTestModel(t, arc)

			m, cmd := press(m, runeKey('e'))
			m = finish(t, m, cmd)
			if m.statusKind != tt.wantKind || !strings.Contains(m.statusMsg, tt.wantMsg) {
				t.Errorf("status = %q (%v), expected %q (%v)", m.statusMsg, m.statusKind, tt.wantMsg, tt.wantKind)
			}
			if len(m.rows()) != 1 {
				t.Error("failed extract must leave the record listed")
			}
		})
	}
}

func TestExtractDeletedRecordIsRefused(t *testing.T) {
	arc := newFakeArchive(entry("a.txt", 10, true))
	m := newTestModel(t, arc)
	m, _ = press(m, runeKey('r'))

	m, cmd := press(m, runeKey('e'))
	if cmd != nil {
		t.Error("extracting a deleted record should not run a command")
	}
	if m.statusKind != statusWarn {
		t.Errorf("status kind = %v, expected warning", m.statusKind)
	}
	if len(arc.extracted) != 0 {
		t.Error("archive should not be touched")
	}
}

func TestCompact(t *testing.T) {
	arc := newFakeArchive(entry("a", 100, true), entry("b", 10, false))
	m := newTestModel(t, arc)
	m, _ = press(m, runeKey('r'))

	m, cmd := press(m, runeKey('c'))
	m = finish(t, m, cmd)

	if arc.compacts != 1 {
		t.Errorf("compacts = %d, expected 1", arc.compacts)
	}
	want := fmt.Sprintf("1 dropped, reclaimed %s", "1.2 KB")
	if !strings.Contains(m.statusMsg, want) {
		t.Errorf("status = %q, expected to contain %q", m.statusMsg, want)
	}
	if len(m.entries) != 1 {
		t.Errorf("entries = %d after compaction, expected 1", len(m.entries))
	}
}

func TestVerify(t *testing.T) {
	arc := newFakeArchive(entry("a", 1, false))
	arc.report = archive.VerifyReport{Checked: 2, Mismatched: []archive.Entry{entry("a", 1, false)}}
	m := newTestModel(t, arc)

	m, cmd := press(m, runeKey('v'))
	m = finish(t, m, cmd)
	if m.statusKind != statusErr || !strings.Contains(m.statusMsg, "mismatch: a") {
		t.Errorf("status = %q (%v)", m.statusMsg, m.statusKind)
	}

	arc.report = archive.VerifyReport{Checked: 1}
	m, cmd = press(m, runeKey('v'))
	m = finish(t, m, cmd)
	if m.statusKind != statusOK || !strings.Contains(m.statusMsg, "1 records verified") {
		t.Errorf("status = %q (%v)", m.statusMsg, m.statusKind)
	}
}

func TestBusyIgnoresKeys(t *testing.T) {
	m := newTestModel(t, newFakeArchive(entry("a", 1, false), entry("b", 1, false)))
	m.busy = true

	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyDown})
	if m.cursor != 0 || cmd != nil {
		t.Error("keys other than quit should be ignored while busy")
	}

	m, cmd = press(m, runeKey('q'))
	if !m.quitting || cmd == nil {
		t.Error("quit should still work while busy")
	}
}

func TestReloadFailureShowsError(t *testing.T) {
	arc := newFakeArchive(entry("a", 1, false))
	m := newTestModel(t, arc)

	arc.errors["Scan"] = errors.New("disk gone")
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlR})
	if m.statusKind != statusErr || !strings.Contains(m.statusMsg, "disk gone") {
		t.Errorf("status = %q (%v)", m.statusMsg, m.statusKind)
	}
}

func TestWindowResize(t *testing.T) {
	m := newTestModel(t, newFakeArchive())

	m2, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 50})
	m = m2.(*Model)
	if m.width != 100 {
		t.Errorf("width = %d, expected 100", m.width)
	}
	if m.height != 50 {
		t.Errorf("height = %d, expected 50", m.height)
	}
}

func TestQuitView(t *testing.T) {
	m := newTestModel(t, newFakeArchive(entry("a", 1, false)))
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if m.View() != "" {
		t.Error("view should be empty after quitting")
	}
}

// TestWithTeatest drives the model through a real program loop
func TestWithTeatest(t *testing.T) {
	arc := newFakeArchive(entry("alpha.txt", 5, false), entry("beta.txt", 3, false))
	m := newTestModel(t, arc)
	m.width = 80
	m.height = 24

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

	// Navigate down and extract
	tm.Send(tea.KeyMsg{Type: tea.KeyDown})
	tm.Send(runeKey('e'))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return strings.Contains(string(bts), "Extracted beta.txt")
	}, teatest.WithDuration(2*time.Second))

	// Quit
	tm.Send(runeKey('q'))

	// Wait for quit
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))

	if len(arc.extracted) != 1 || arc.extracted[0] != "beta.txt" {
		t.Errorf("extracted = %v, expected [beta.txt]", arc.extracted)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		max      int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is t…"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := truncate(tt.input, tt.max); result != tt.expected {
				t.Errorf("truncate(%q, %d) = %q, expected %q", tt.input, tt.max, result, tt.expected)
			}
		})
	}
}
