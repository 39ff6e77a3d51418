package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/bilifav/bilifavdl/internal/bili"
)

type ItemStatus string

const (
	StatusSucceeded ItemStatus = "succeeded"
	StatusSkipped   ItemStatus = "skipped"
	StatusFailed    ItemStatus = "failed"
)

// ItemResult is the outcome for one video page.
type ItemResult struct {
	BVID     string
	CID      int64
	FolderID int64
	Name     string
	Quality  int
	Status   ItemStatus
	Err      error
}

// Summary reports one full pass: counts plus per-item outcomes with
// failure reasons.
type Summary struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	Folders   int
	Succeeded int
	Skipped   int
	Failed    int
	Results   []ItemResult
}

func newSummary() *Summary {
	return &Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
}

func (s *Summary) record(r ItemResult) {
	switch r.Status {
	case StatusSucceeded:
		s.Succeeded++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

func (s *Summary) finish() {
	s.Duration = time.Since(s.StartedAt).Round(time.Second)
}

// Print writes a human-readable run report, listing every failed item
// with its failure class.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "\nRun %s finished in %s\n", s.RunID, s.Duration)
	fmt.Fprintf(w, "  folders:    %d\n", s.Folders)
	fmt.Fprintf(w, "  succeeded:  %d\n", s.Succeeded)
	fmt.Fprintf(w, "  skipped:    %d (already downloaded)\n", s.Skipped)
	fmt.Fprintf(w, "  failed:     %d\n", s.Failed)
	if s.Failed == 0 {
		return
	}
	fmt.Fprintln(w, "Failures:")
	for _, r := range s.Results {
		if r.Status != StatusFailed {
			continue
		}
		fmt.Fprintf(w, "  %s (cid %d): [%s] %v\n", r.BVID, r.CID, bili.KindOf(r.Err), r.Err)
	}
}
