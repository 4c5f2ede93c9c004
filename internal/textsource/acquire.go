// Package textsource obtains the plain text of a stored policy document,
// from its embedded text layer, from OCR, or from whichever yields more.
package textsource

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/blob"
	"github.com/nicsan/crm-extract/internal/ocr"
)

// PageBreak separates pages in fast-parsed text.
const PageBreak = "\n\n===PAGE_BREAK===\n\n"

// Mode selects how text is acquired.
type Mode string

// Acquisition modes.
const (
	ModeAuto Mode = "auto"
	ModeFast Mode = "fast"
	ModeOCR  Mode = "ocr"
)

// ParseMode parses a mode name; "" means auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAuto, "":
		return ModeAuto, nil
	case ModeFast:
		return ModeFast, nil
	case ModeOCR:
		return ModeOCR, nil
	default:
		return "", eris.Errorf("textsource: unknown mode %q", s)
	}
}

// Via names where the returned text came from.
type Via string

// Text sources.
const (
	ViaFast Via = "fast"
	ViaOCR  Via = "ocr"
)

// Text is acquired document text.
type Text struct {
	Text  string
	Via   Via
	Pages int
}

// Chars returns the text length in characters.
func (t Text) Chars() int {
	return utf8.RuneCountInString(t.Text)
}

// Options tunes acquisition.
type Options struct {
	PageLimit    int
	OCRThreshold int
	OCRTimeout   time.Duration
	PollInterval time.Duration
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		PageLimit:    4,
		OCRThreshold: 500,
		OCRTimeout:   120 * time.Second,
		PollInterval: 2 * time.Second,
	}
}

// Acquirer fetches documents and turns them into text.
type Acquirer struct {
	store  blob.Store
	parser ocr.Parser
	jobs   ocr.JobService
	opts   Options
}

// New creates an Acquirer.
func New(store blob.Store, parser ocr.Parser, jobs ocr.JobService, opts Options) *Acquirer {
	return &Acquirer{store: store, parser: parser, jobs: jobs, opts: opts}
}

// GetText acquires the text of the document at key. uploadID keys the OCR
// text cache and may be empty.
func (a *Acquirer) GetText(ctx context.Context, key, uploadID string, mode Mode) (Text, error) {
	switch mode {
	case ModeFast:
		return a.fast(ctx, key)
	case ModeOCR:
		return a.ocr(ctx, key, uploadID)
	default:
		return a.auto(ctx, key, uploadID)
	}
}

func (a *Acquirer) auto(ctx context.Context, key, uploadID string) (Text, error) {
	log := zap.L().With(zap.String("key", key), zap.String("upload_id", uploadID))

	fast, fastErr := a.fast(ctx, key)
	if fastErr != nil {
		log.Warn("textsource: fast parse failed, trying ocr", zap.Error(fastErr))
		return a.ocr(ctx, key, uploadID)
	}
	if fast.Chars() >= a.opts.OCRThreshold {
		return fast, nil
	}

	log.Info("textsource: fast text below threshold, running ocr",
		zap.Int("fast_chars", fast.Chars()),
		zap.Int("threshold", a.opts.OCRThreshold),
	)
	scanned, err := a.ocr(ctx, key, uploadID)
	if err != nil {
		log.Warn("textsource: ocr failed, using fast text", zap.Error(err))
		return fast, nil
	}
	if scanned.Chars() > fast.Chars() {
		return scanned, nil
	}
	return fast, nil
}

func (a *Acquirer) fast(ctx context.Context, key string) (Text, error) {
	data, _, err := a.store.GetBlob(ctx, key)
	if err != nil {
		return Text{}, &AcquisitionError{Stage: StageFetch, Key: key, Err: err}
	}

	if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
		return Text{}, &AcquisitionError{
			Stage: StageSniff,
			Key:   key,
			Err:   eris.Errorf("textsource: expected application/pdf, got %s", mt.String()),
		}
	}

	pages, err := a.parser.ParsePages(ctx, data, a.opts.PageLimit)
	if err != nil {
		return Text{}, &AcquisitionError{Stage: StageParse, Key: key, Err: err}
	}

	text := strings.TrimSpace(Normalize(strings.Join(pages, PageBreak)))
	return Text{Text: text, Via: ViaFast, Pages: len(pages)}, nil
}

func (a *Acquirer) ocr(ctx context.Context, key, uploadID string) (Text, error) {
	log := zap.L().With(zap.String("key", key), zap.String("upload_id", uploadID))

	if uploadID != "" {
		if cached, ok := a.store.GetCachedText(ctx, uploadID); ok {
			log.Info("textsource: ocr cache hit", zap.Int("chars", len(cached)))
			return Text{Text: Normalize(cached), Via: ViaOCR}, nil
		}
	}

	if a.jobs == nil {
		return Text{}, &AcquisitionError{Stage: StageOCR, Key: key, Err: eris.New("textsource: ocr not configured")}
	}

	loc, err := a.store.Resolve(ctx, key)
	if err != nil {
		return Text{}, &AcquisitionError{Stage: StageFetch, Key: key, Err: err}
	}

	start := time.Now()
	jobID, err := a.jobs.StartJob(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return Text{}, &AcquisitionError{Stage: StageOCR, Key: key, Err: err}
	}
	lines, err := ocr.Wait(ctx, a.jobs, jobID, a.opts.OCRTimeout, ocr.WithPollInterval(a.opts.PollInterval))
	if err != nil {
		return Text{}, &AcquisitionError{Stage: StageOCR, Key: key, Err: err}
	}
	raw := ocr.JoinLines(lines)
	log.Info("textsource: ocr complete",
		zap.String("job_id", jobID),
		zap.Int("lines", len(lines)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if uploadID != "" {
		if err := a.store.PutCachedText(ctx, uploadID, raw); err != nil {
			log.Warn("textsource: ocr cache write failed", zap.Error(err))
		}
	}
	return Text{Text: Normalize(raw), Via: ViaOCR}, nil
}
