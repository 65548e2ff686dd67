package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/formulary/internal/editor"
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/testutil"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "formulary.db")
	return cfg
}

func TestOpenSession_RestoresPreviousRun(t *testing.T) {
	cfg := testConfig(t)

	first, err := OpenSession(cfg, testutil.Logger())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	a, err := first.Editor.Insert(editor.Input{SourceText: `\frac{a}{b}`})
	if err != nil {
		t.Fatal(err)
	}
	b, err := first.Editor.Insert(editor.Input{Kind: models.KindBlock, SourceText: "x^2"})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Editor.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := first.Editor.Undo(); err != nil {
		t.Fatal(err)
	}
	src := `\sqrt{x}`
	if _, err := first.Editor.Update(b.ID, editor.Change{SourceText: &src}); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := OpenSession(cfg, testutil.Logger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	if n := len(second.Editor.List()); n != 2 {
		t.Fatalf("restored %d formulas, want 2", n)
	}
	gotA, ok := second.Editor.Get(a.ID)
	if !ok || gotA.SourceText != `\frac{a}{b}` || gotA.RenderedMarkup == "" {
		t.Errorf("restored a = %+v, %v", gotA, ok)
	}
	gotB, ok := second.Editor.Get(b.ID)
	if !ok || gotB.SourceText != src || gotB.Kind != models.KindBlock {
		t.Errorf("restored b = %+v, %v", gotB, ok)
	}
	if second.Editor.CanUndo() {
		t.Error("restored formulas should not be undoable")
	}
	if second.Inbox != nil {
		t.Error("inbox opened while disabled")
	}
}

func TestOpenSession_Inbox(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inbox.Enabled = true
	cfg.Inbox.Path = filepath.Join(t.TempDir(), "inbox")

	sess, err := OpenSession(cfg, testutil.Logger())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	defer sess.Close()

	if sess.Inbox == nil || sess.exportStore() == nil {
		t.Fatal("inbox not opened")
	}
	if _, err := os.Stat(cfg.Inbox.Path); err != nil {
		t.Errorf("inbox dir not created: %v", err)
	}
}
