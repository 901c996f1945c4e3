package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/iconidentify/tokrelay/internal/config"
	"github.com/iconidentify/tokrelay/internal/domain"
)

const opExtract = "extract"

// videoInfo is the subset of the yt-dlp --dump-json document we read.
type videoInfo struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Formats []rawFormat `json:"formats"`
}

type rawFormat struct {
	FormatID  string  `json:"format_id"`
	URL       *string `json:"url"`
	Ext       string  `json:"ext"`
	VCodec    string  `json:"vcodec"`
	Height    *int    `json:"height"`
	Watermark *bool   `json:"watermark"`
}

// YTDLP runs the yt-dlp binary in metadata-only mode.
type YTDLP struct {
	cfg    config.ExtractorConfig
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewYTDLP creates a yt-dlp backed extractor.
func NewYTDLP(cfg config.ExtractorConfig, logger *slog.Logger) *YTDLP {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = config.MobileUserAgent
	}
	return &YTDLP{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger: logger,
	}
}

// buildArgs builds the command line for one extraction.
func (y *YTDLP) buildArgs(url string) []string {
	args := []string{
		"--dump-json",
		"--skip-download",
		"--quiet",
		"--no-warnings",
		"--no-playlist",
		"--user-agent", y.cfg.UserAgent,
	}

	if y.cfg.NoCheckCertificate {
		args = append(args, "--no-check-certificate")
	}

	if y.cfg.Proxy != "" {
		args = append(args, "--proxy", y.cfg.Proxy)
	}

	// Cookie injection is for local debugging; production leaves it unset.
	if y.cfg.CookiesFile != "" {
		if _, err := os.Stat(y.cfg.CookiesFile); err == nil {
			args = append(args, "--cookies", y.cfg.CookiesFile)
		}
	}

	return append(args, "--", url)
}

// Extract implements Extractor.
func (y *YTDLP) Extract(ctx context.Context, url string) (*domain.Info, error) {
	if err := y.sem.Acquire(ctx, 1); err != nil {
		return nil, domain.NewError(domain.KindInternal, opExtract, err)
	}
	defer y.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, y.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, y.cfg.BinaryPath, y.buildArgs(url)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, domain.NewError(domain.KindInternal, opExtract, domain.ErrExtractorTimeout)
		}
		if ctx.Err() != nil {
			return nil, domain.NewError(domain.KindInternal, opExtract, ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := firstErrorLine(stderr.String()); msg != "" {
				de := domain.NewError(domain.KindExtractorFailed, opExtract, domain.ErrExtractionFailed)
				de.Details = msg
				return nil, de
			}
		}

		de := domain.NewError(domain.KindInternal, opExtract, fmt.Errorf("run yt-dlp: %w", err))
		de.Details = strings.TrimSpace(stderr.String())
		return nil, de
	}

	info, err := parseInfo(stdout.Bytes())
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, opExtract, err)
	}

	y.logger.Debug("extraction complete",
		"url", url,
		"video_id", info.ID,
		"formats", len(info.Formats),
	)

	return info, nil
}

// parseInfo decodes the first JSON document yt-dlp printed.
func parseInfo(output []byte) (*domain.Info, error) {
	var raw videoInfo
	if err := json.NewDecoder(bytes.NewReader(output)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}

	info := &domain.Info{
		ID:      raw.ID,
		Title:   raw.Title,
		Formats: make([]domain.Format, 0, len(raw.Formats)),
	}
	for _, f := range raw.Formats {
		info.Formats = append(info.Formats, f.toDomain())
	}
	return info, nil
}

func (f rawFormat) toDomain() domain.Format {
	out := domain.Format{
		ID:         f.FormatID,
		Container:  f.Ext,
		VideoCodec: f.VCodec,
		// Unmarked formats are assumed to carry a watermark.
		HasWatermark: true,
	}
	if f.Watermark != nil {
		out.HasWatermark = *f.Watermark
	}
	if f.Height != nil {
		out.Height = *f.Height
	}
	if f.URL != nil {
		out.AssetURL = *f.URL
	}
	return out
}

// firstErrorLine returns the first "ERROR:" line yt-dlp wrote, without the prefix.
func firstErrorLine(stderr string) string {
	sc := bufio.NewScanner(strings.NewReader(stderr))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "ERROR:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
