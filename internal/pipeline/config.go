package pipeline

import (
	"errors"
	"time"
)

// Config is resolved once at run start by the CLI layer and read-only
// afterwards. Durations arrive as seconds, matching the config file.
type Config struct {
	Cookies     string `mapstructure:"cookies"`
	SavePath    string `mapstructure:"save_path"`
	TempDir     string `mapstructure:"temp_dir"`
	HistoryPath string `mapstructure:"history_file"`
	FFmpegPath  string `mapstructure:"ffmpeg_path"`

	RequestInterval float64 `mapstructure:"request_interval"`
	MaxRetries      int     `mapstructure:"max_retries"`
	RetryBaseDelay  float64 `mapstructure:"retry_base_delay"`
	Retry412Max     int     `mapstructure:"retry_412_max"`
	Retry412Delay   float64 `mapstructure:"retry_412_delay"`

	DownloadHDR   bool    `mapstructure:"download_hdr"`
	TargetFolders []int64 `mapstructure:"target_folders"`

	MaxTitleLength    int  `mapstructure:"max_title_length"`
	MaxFilenameLength int  `mapstructure:"max_filename_length"`
	UpnameMaxLength   int  `mapstructure:"upname_max_length"`
	FolderHistory     bool `mapstructure:"folder_history"`

	IntervalHours int  `mapstructure:"interval_hours"`
	Quiet         bool `mapstructure:"quiet"`
}

// Defaults mirror the platform-friendly values the tool has always
// shipped with.
const (
	DefaultSavePath          = "./downloads"
	DefaultTempDir           = "./temp"
	DefaultHistoryPath       = "./config/download_history.json"
	DefaultHistoryDir        = "./config/history"
	DefaultFFmpegPath        = "ffmpeg"
	DefaultRequestInterval   = 1.5
	DefaultMaxRetries        = 3
	DefaultRetryBaseDelay    = 2.0
	DefaultRetry412Max       = 3
	DefaultRetry412Delay     = 120.0
	DefaultMaxTitleLength    = 80
	DefaultMaxFilenameLength = 240
	DefaultUpnameMaxLength   = 10
	DefaultIntervalHours     = 6
)

// ApplyDefaults fills unset scalar options. Boolean options default
// through the CLI layer (viper), where unset and false are
// distinguishable.
func (c *Config) ApplyDefaults() {
	if c.SavePath == "" {
		c.SavePath = DefaultSavePath
	}
	if c.TempDir == "" {
		c.TempDir = DefaultTempDir
	}
	if c.HistoryPath == "" {
		if c.FolderHistory {
			c.HistoryPath = DefaultHistoryDir
		} else {
			c.HistoryPath = DefaultHistoryPath
		}
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = DefaultFFmpegPath
	}
	if c.RequestInterval <= 0 {
		c.RequestInterval = DefaultRequestInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Retry412Max <= 0 {
		c.Retry412Max = DefaultRetry412Max
	}
	if c.Retry412Delay <= 0 {
		c.Retry412Delay = DefaultRetry412Delay
	}
	if c.MaxTitleLength <= 0 {
		c.MaxTitleLength = DefaultMaxTitleLength
	}
	if c.MaxFilenameLength <= 0 {
		c.MaxFilenameLength = DefaultMaxFilenameLength
	}
	if c.UpnameMaxLength <= 0 {
		c.UpnameMaxLength = DefaultUpnameMaxLength
	}
	if c.IntervalHours <= 0 {
		c.IntervalHours = DefaultIntervalHours
	}
}

func (c *Config) Validate() error {
	if c.Cookies == "" {
		return errors.New("cookies are required; run 'bilifavdl configure' or set the cookies option")
	}
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (c *Config) requestInterval() time.Duration { return seconds(c.RequestInterval) }
func (c *Config) retryBaseDelay() time.Duration  { return seconds(c.RetryBaseDelay) }
func (c *Config) retry412Delay() time.Duration   { return seconds(c.Retry412Delay) }

// Interval returns the wait between scheduled passes.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}
