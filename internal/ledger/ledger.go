// Package ledger persists which (folder, video) pairs have completed,
// making re-runs idempotent. Records are append-only and written
// strictly after a successful remux.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bilifav/bilifavdl/internal/bili"
)

// Entry is one completed download. Key is the sanitized filename base
// the output file was written under.
type Entry struct {
	BVID      string `json:"bvid"`
	CID       int64  `json:"cid"`
	Quality   int    `json:"quality"`
	Title     string `json:"title"`
	Uploader  string `json:"up"`
	FolderID  int64  `json:"folder_id"`
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
}

// Ledger is the durable completion history. Single writer, sequential
// item processing; writes replace the backing file atomically.
type Ledger struct {
	path      string
	perFolder bool

	entries map[int64][]Entry
	seen    map[string]struct{}
}

// Open loads the history from disk. With perFolder set, path is a
// directory holding one history file per favorites folder and folder
// membership participates in the dedup key; otherwise path is a single
// file and the filename key alone decides membership.
func Open(path string, perFolder bool) (*Ledger, error) {
	l := &Ledger{
		path:      path,
		perFolder: perFolder,
		entries:   make(map[int64][]Entry),
		seen:      make(map[string]struct{}),
	}

	if perFolder {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, bili.WrapError(bili.ErrKindFilesystem, "failed to create history directory", err)
		}
		matches, err := filepath.Glob(filepath.Join(path, "history_*.json"))
		if err != nil {
			return nil, bili.WrapError(bili.ErrKindFilesystem, "failed to list history files", err)
		}
		for _, file := range matches {
			if err := l.loadFile(file); err != nil {
				return nil, err
			}
		}
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, bili.WrapError(bili.ErrKindFilesystem, "failed to create history directory", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := l.loadFile(path); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, bili.WrapError(bili.ErrKindFilesystem, "failed to stat history file", err)
	}
	return l, nil
}

func (l *Ledger) loadFile(file string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return bili.WrapError(bili.ErrKindFilesystem, "failed to read history file", err)
	}
	if len(raw) == 0 {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return bili.WrapError(bili.ErrKindFilesystem, fmt.Sprintf("corrupt history file %s", file), err)
	}
	for _, e := range entries {
		l.entries[l.bucket(e.FolderID)] = append(l.entries[l.bucket(e.FolderID)], e)
		l.seen[l.memberKey(e.FolderID, e.Key)] = struct{}{}
	}
	return nil
}

func (l *Ledger) bucket(folderID int64) int64 {
	if l.perFolder {
		return folderID
	}
	return 0
}

func (l *Ledger) memberKey(folderID int64, key string) string {
	if l.perFolder {
		return fmt.Sprintf("%d/%s", folderID, key)
	}
	return key
}

// Has reports whether a completed download is already recorded for the
// given folder and filename key.
func (l *Ledger) Has(folderID int64, key string) bool {
	_, ok := l.seen[l.memberKey(folderID, key)]
	return ok
}

// Len returns the number of loaded history entries.
func (l *Ledger) Len() int {
	return len(l.seen)
}

// Record appends e and persists the affected history file. The entry is
// visible to Has immediately.
func (l *Ledger) Record(e Entry) error {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	bucket := l.bucket(e.FolderID)
	l.entries[bucket] = append(l.entries[bucket], e)
	l.seen[l.memberKey(e.FolderID, e.Key)] = struct{}{}
	return l.flush(bucket)
}

func (l *Ledger) flush(bucket int64) error {
	file := l.path
	if l.perFolder {
		file = filepath.Join(l.path, fmt.Sprintf("history_%d.json", bucket))
	}
	raw, err := json.MarshalIndent(l.entries[bucket], "", "  ")
	if err != nil {
		return bili.WrapError(bili.ErrKindFilesystem, "failed to encode history", err)
	}
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return bili.WrapError(bili.ErrKindFilesystem, "failed to write history", err)
	}
	if err := os.Rename(tmp, file); err != nil {
		return bili.WrapError(bili.ErrKindFilesystem, "failed to replace history", err)
	}
	return nil
}
