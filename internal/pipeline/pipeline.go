// Package pipeline drives one acquisition pass: favorites enumeration,
// stream resolution, chunked download, remux and completion
// bookkeeping, with per-item failure isolation.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/bilifav/bilifavdl/internal/bili"
	"github.com/bilifav/bilifavdl/internal/fetch"
	"github.com/bilifav/bilifavdl/internal/ledger"
	"github.com/bilifav/bilifavdl/internal/naming"
	"github.com/bilifav/bilifavdl/internal/remux"
)

// resolver, fetcher and muxer are the pipeline's collaborator surfaces,
// narrowed so tests can substitute fakes.
type resolver interface {
	ListFolders(ctx context.Context, targets []int64) ([]bili.Folder, error)
	FolderItems(ctx context.Context, folderID int64) ([]bili.FavoriteItem, error)
	FetchVideoInfo(ctx context.Context, bvid string) (*bili.VideoInfo, error)
	ResolveStreams(ctx context.Context, bvid string, cid int64) (*bili.PlayInfo, error)
}

type fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

type muxer interface {
	Remux(ctx context.Context, videoPath, audioPath, outputPath string) error
}

type Pipeline struct {
	cfg     *Config
	client  resolver
	fetcher fetcher
	remuxer muxer
	ledger  *ledger.Ledger
	policy  naming.Policy
	logger  *log.Logger
}

// New wires the pipeline from a resolved configuration. Filesystem
// failures here (save path, temp dir, ledger) are fatal to the run.
func New(cfg *Config, logger *log.Logger) (*Pipeline, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	for _, dir := range []string{cfg.SavePath, cfg.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, bili.WrapError(bili.ErrKindFilesystem, "failed to create directory", err)
		}
	}
	sweepTempDir(cfg.TempDir, logger)

	led, err := ledger.Open(cfg.HistoryPath, cfg.FolderHistory)
	if err != nil {
		return nil, err
	}
	logger.Infof("loaded %d history entries", led.Len())

	client := bili.NewClient(cfg.Cookies, logger)
	client.Retry412Max = cfg.Retry412Max
	client.Retry412Delay = cfg.retry412Delay()
	client.MaxRetries = cfg.MaxRetries
	client.RetryBaseDelay = cfg.retryBaseDelay()
	client.RequestInterval = cfg.requestInterval()

	// Streams get their own transport: the API client's whole-request
	// timeout would cut off any download longer than it.
	f := fetch.New(fetch.NewHTTPClient(), fetch.Options{
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.retryBaseDelay(),
		Retry412Max:    cfg.Retry412Max,
		Retry412Delay:  cfg.retry412Delay(),
		Interval:       cfg.requestInterval(),
		Headers:        client.RequestHeaders(),
		ShowProgress:   !cfg.Quiet,
	}, logger)

	return &Pipeline{
		cfg:     cfg,
		client:  client,
		fetcher: f,
		remuxer: remux.New(cfg.FFmpegPath, logger),
		ledger:  led,
		policy: naming.Policy{
			MaxTitleLength:    cfg.MaxTitleLength,
			MaxFilenameLength: cfg.MaxFilenameLength,
			UpnameMaxLength:   cfg.UpnameMaxLength,
		},
		logger: logger.WithPrefix("pipeline"),
	}, nil
}

// sweepTempDir removes stream fragments orphaned by a previous
// terminated run.
func sweepTempDir(dir string, logger *log.Logger) {
	for _, pattern := range []string{"*.m4s", "*.tmp"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, stale := range matches {
			if err := os.Remove(stale); err == nil {
				logger.Debugf("removed stale temp file %s", stale)
			}
		}
	}
}

// Run performs one full pass over the configured favorites folders.
// Only an authentication failure (or a startup error in New) aborts the
// pass; everything else is reported per item in the summary.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := newSummary()
	p.logger.Infof("starting run %s", summary.RunID)

	folders, err := p.client.ListFolders(ctx, p.cfg.TargetFolders)
	if err != nil {
		return summary, fmt.Errorf("failed to list favorites folders: %w", err)
	}
	if len(folders) == 0 {
		p.logger.Warn("no favorites folders found")
		return summary, nil
	}
	summary.Folders = len(folders)

	for _, folder := range folders {
		if err := p.processFolder(ctx, folder, summary); err != nil {
			return summary, err
		}
	}

	summary.finish()
	p.logger.Infof("run %s finished: %d succeeded, %d skipped, %d failed",
		summary.RunID, summary.Succeeded, summary.Skipped, summary.Failed)
	return summary, nil
}

func (p *Pipeline) processFolder(ctx context.Context, folder bili.Folder, summary *Summary) error {
	title := naming.SanitizeFolder(folder.Title, strconv.FormatInt(folder.ID, 10))
	dir := filepath.Join(p.cfg.SavePath, title)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.logger.Errorf("skipping folder %q: %v", title, err)
		return nil
	}
	p.logger.Infof("processing folder %q (id %d)", title, folder.ID)

	items, err := p.client.FolderItems(ctx, folder.ID)
	if err != nil {
		if bili.IsKind(err, bili.ErrKindAuth) {
			return err
		}
		p.logger.Errorf("failed to list folder %q: %v", title, err)
		return nil
	}

	for _, item := range items {
		if err := p.processItem(ctx, dir, item, summary); err != nil {
			// Per-item isolation: only auth failures and context
			// cancellation propagate.
			if bili.IsKind(err, bili.ErrKindAuth) || ctx.Err() != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) processItem(ctx context.Context, dir string, item bili.FavoriteItem, summary *Summary) error {
	info, err := p.client.FetchVideoInfo(ctx, item.BVID)
	if err != nil {
		p.logger.Errorf("failed to fetch video info for %s: %v", item.BVID, err)
		summary.record(ItemResult{BVID: item.BVID, FolderID: item.FolderID, Name: item.Title, Status: StatusFailed, Err: err})
		return err
	}

	var firstErr error
	for _, page := range info.Pages {
		if page.CID == 0 {
			continue
		}
		result := p.processPage(ctx, dir, item.FolderID, info, page)
		summary.record(result)
		if result.Err != nil && firstErr == nil {
			firstErr = result.Err
		}
		if result.Err != nil && (bili.IsKind(result.Err, bili.ErrKindAuth) || ctx.Err() != nil) {
			return result.Err
		}
	}
	return firstErr
}

func (p *Pipeline) processPage(ctx context.Context, dir string, folderID int64, info *bili.VideoInfo, page bili.VideoPage) ItemResult {
	key := p.policy.FileBase(info.Title, page.Part, page.Page, len(info.Pages), info.Owner.Name)
	result := ItemResult{BVID: info.BVID, CID: page.CID, FolderID: folderID, Name: key}

	if p.ledger.Has(folderID, key) {
		p.logger.Debugf("skipping already downloaded %s (cid %d)", info.BVID, page.CID)
		result.Status = StatusSkipped
		return result
	}

	quality, err := p.downloadPage(ctx, dir, folderID, info, page, key)
	if err != nil {
		p.logger.Errorf("failed %s (cid %d): %v", info.BVID, page.CID, err)
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	result.Status = StatusSucceeded
	result.Quality = quality
	p.logger.Infof("downloaded %q", key)
	return result
}

// downloadPage runs the per-page chain: resolve, fetch video, fetch
// audio, remux, record. Temp streams are removed on every exit path;
// the ledger is written only after the remuxer confirmed success.
func (p *Pipeline) downloadPage(ctx context.Context, dir string, folderID int64, info *bili.VideoInfo, page bili.VideoPage, key string) (quality int, err error) {
	playInfo, err := p.client.ResolveStreams(ctx, info.BVID, page.CID)
	if err != nil {
		return 0, err
	}
	video, audio, err := bili.SelectStreams(playInfo, p.cfg.DownloadHDR)
	if err != nil {
		return 0, err
	}

	tempVideo := filepath.Join(p.cfg.TempDir, fmt.Sprintf("%s_%d_video.m4s", info.BVID, page.CID))
	tempAudio := filepath.Join(p.cfg.TempDir, fmt.Sprintf("%s_%d_audio.m4s", info.BVID, page.CID))
	defer func() {
		_ = os.Remove(tempVideo)
		_ = os.Remove(tempAudio)
	}()

	if err := p.fetcher.Fetch(ctx, video.URL(), tempVideo); err != nil {
		return 0, err
	}
	if err := p.fetcher.Fetch(ctx, audio.URL(), tempAudio); err != nil {
		return 0, err
	}

	outputPath := resolveCollision(dir, key)
	if err := p.remuxer.Remux(ctx, tempVideo, tempAudio, outputPath); err != nil {
		return 0, err
	}

	err = p.ledger.Record(ledger.Entry{
		BVID:     info.BVID,
		CID:      page.CID,
		Quality:  video.ID,
		Title:    info.Title,
		Uploader: info.Owner.Name,
		FolderID: folderID,
		Key:      key,
	})
	if err != nil {
		return 0, err
	}
	return video.ID, nil
}

// resolveCollision appends a numeric suffix until the output name is
// free. The ledger key stays the unsuffixed base.
func resolveCollision(dir, key string) string {
	path := filepath.Join(dir, key+".mp4")
	for counter := 1; ; counter++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.mp4", key, counter))
	}
}
