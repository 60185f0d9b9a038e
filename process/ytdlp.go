package process

import (
	"context"
	"log/slog"
	"path/filepath"

	"ewintr.nl/vidl/model"
	"github.com/lrstanley/go-ytdlp"
)

const (
	DefaultFilenameFormat = "%(uploader)s__%(upload_date)s_%(title)s__%(id)s.%(ext)s"
	DefaultYtdlpFormat    = "bestvideo[height<=1080]+bestaudio/best"
)

type YtdlpInfo struct {
	Dir            string
	FilenameFormat string
	Format         string
}

// Ytdlp downloads videos by running the yt-dlp binary.
type Ytdlp struct {
	output string
	format string
	logger *slog.Logger
}

func NewYtdlp(info YtdlpInfo, logger *slog.Logger) *Ytdlp {
	if info.FilenameFormat == "" {
		info.FilenameFormat = DefaultFilenameFormat
	}
	if info.Format == "" {
		info.Format = DefaultYtdlpFormat
	}
	return &Ytdlp{
		output: filepath.Join(info.Dir, info.FilenameFormat),
		format: info.Format,
		logger: logger,
	}
}

func (y *Ytdlp) Download(ctx context.Context, video model.VideoRecord) error {
	cmd := ytdlp.New().
		Format(y.format).
		RestrictFilenames().
		Output(y.output)

	y.logger.Info("starting download", slog.String("url", video.URL), slog.String("output", y.output))
	res, err := cmd.Run(ctx, video.URL)
	if err != nil {
		return err
	}
	y.logger.Debug("download finished", slog.String("url", video.URL), slog.Int("exitcode", res.ExitCode))

	return nil
}
