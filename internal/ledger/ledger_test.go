package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecordAndHas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	l, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	if l.Has(1, "some_video-up") {
		t.Error("empty ledger should not report membership")
	}

	entry := Entry{BVID: "BV1xx411c7mD", CID: 1001, Quality: 80, Title: "some video", Uploader: "up", FolderID: 1, Key: "some_video-up"}
	if err := l.Record(entry); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if !l.Has(1, "some_video-up") {
		t.Error("recorded entry not reported by Has")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	l, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := l.Record(Entry{BVID: "BV1", CID: 1, FolderID: 5, Key: "key-a"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	reopened, err := Open(path, false)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	if !reopened.Has(5, "key-a") {
		t.Error("entry lost across reopen")
	}
	if reopened.Len() != 1 {
		t.Errorf("Len = %d, want 1", reopened.Len())
	}
}

func TestSingleFileIgnoresFolderID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	l, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := l.Record(Entry{BVID: "BV1", FolderID: 1, Key: "shared-key"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	// Without folder history the filename key alone decides membership.
	if !l.Has(2, "shared-key") {
		t.Error("single-file ledger should match the key regardless of folder")
	}
}

func TestPerFolderKeysIncludeFolderID(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, true)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := l.Record(Entry{BVID: "BV1", FolderID: 1, Key: "shared-key"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	if !l.Has(1, "shared-key") {
		t.Error("recorded entry not reported for its own folder")
	}
	if l.Has(2, "shared-key") {
		t.Error("per-folder ledger must not match across folders")
	}

	if _, err := os.Stat(filepath.Join(dir, "history_1.json")); err != nil {
		t.Errorf("expected per-folder history file: %v", err)
	}
}

func TestPerFolderPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, true)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := l.Record(Entry{BVID: "BV1", FolderID: 7, Key: "k1"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := l.Record(Entry{BVID: "BV2", FolderID: 8, Key: "k2"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	reopened, err := Open(dir, true)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	if !reopened.Has(7, "k1") || !reopened.Has(8, "k2") {
		t.Error("entries lost across reopen")
	}
}

func TestHistoryFileIsHumanReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	l, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := l.Record(Entry{BVID: "BV1xx411c7mD", CID: 42, Key: "k"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if !strings.Contains(string(raw), "\"bvid\": \"BV1xx411c7mD\"") {
		t.Errorf("history not indented as expected:\n%s", raw)
	}
}

func TestOpenToleratesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	l, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open returned error for empty file: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}
}
