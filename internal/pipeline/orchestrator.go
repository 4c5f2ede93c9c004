// Package pipeline runs one extraction end to end: text acquisition,
// windowing, the model call, regex assist, the evidence gate and schema
// validation.
package pipeline

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/assist"
	"github.com/nicsan/crm-extract/internal/gate"
	"github.com/nicsan/crm-extract/internal/llm"
	"github.com/nicsan/crm-extract/internal/model"
	"github.com/nicsan/crm-extract/internal/textsource"
	"github.com/nicsan/crm-extract/internal/window"
)

// CodeTextEmpty is the error code for OCR text too short to extract from.
const CodeTextEmpty = "pdf_text_empty"

// EvidenceSnippet tags records produced from the windowed model call.
const EvidenceSnippet = "openai:windowed"

// ErrTextEmpty is returned by ExtractWith in OCR mode when the recognized
// text is shorter than the configured minimum.
var ErrTextEmpty = errors.New(CodeTextEmpty)

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Confidence assigned to each model-derived field before assist and gate.
const (
	confInsurer = 0.9
	confPolicy  = 0.95
	confVehicle = 0.9
	confDates   = 0.9
	confPremium = 0.9
	confIDV     = 0.85
)

// TextSource acquires document text.
type TextSource interface {
	GetText(ctx context.Context, key, uploadID string, mode textsource.Mode) (textsource.Text, error)
}

// FieldExtractor runs the model call over windowed text.
type FieldExtractor interface {
	Extract(ctx context.Context, uploadID string, tier model.Tier, insurerHint, windowed string) (*llm.Result, error)
}

// Upload identifies the document to extract.
type Upload struct {
	DocumentKey string
	UploadID    string
	InsurerHint string
}

// Meta reports how a response was produced. It is never persisted.
type Meta struct {
	Via               textsource.Via `json:"via"`
	ModelTag          model.Tier     `json:"model_tag"`
	TextCharCount     int            `json:"text_char_count"`
	TextAcquisitionMS int64          `json:"text_acquisition_ms"`
	LLMMS             int64          `json:"llm_ms"`
	TotalMS           int64          `json:"total_ms"`
}

// Response is a validated extraction.
type Response struct {
	Data model.PolicyExtract `json:"data"`
	Meta Meta                `json:"meta"`
}

// Options tunes the orchestrator.
type Options struct {
	// MinOCRChars is the shortest OCR text accepted in forced OCR mode.
	MinOCRChars int
	// AssistDebug logs the lines around assist labels before rules run.
	AssistDebug bool
	// Catalog overrides the embedded assist catalog.
	Catalog *assist.Catalog
}

// Orchestrator wires the extraction stages.
type Orchestrator struct {
	text    TextSource
	llm     FieldExtractor
	catalog *assist.Catalog
	opts    Options
}

// New creates an Orchestrator.
func New(text TextSource, extractor FieldExtractor, opts Options) *Orchestrator {
	if opts.MinOCRChars <= 0 {
		opts.MinOCRChars = 20
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = assist.DefaultCatalog()
	}
	return &Orchestrator{text: text, llm: extractor, catalog: catalog, opts: opts}
}

// Extract runs an auto-mode extraction.
func (o *Orchestrator) Extract(ctx context.Context, up Upload, tier model.Tier) (*Response, error) {
	return o.ExtractWith(ctx, up, tier, textsource.ModeAuto)
}

// ExtractWith runs an extraction with an explicit text acquisition mode.
// Acquisition and model failures abort the run; no partial record is
// returned.
func (o *Orchestrator) ExtractWith(ctx context.Context, up Upload, tier model.Tier, mode textsource.Mode) (*Response, error) {
	log := zap.L().With(
		zap.String("upload_id", up.UploadID),
		zap.String("tier", string(tier)),
		zap.String("mode", string(mode)),
	)
	start := time.Now()

	txt, err := o.text.GetText(ctx, up.DocumentKey, up.UploadID, mode)
	textDur := time.Since(start)
	if err != nil {
		extractionsTotal.WithLabelValues(string(tier), outcomeTextFailed).Inc()
		log.Warn("pipeline: text acquisition failed", zap.Error(err))
		return nil, err
	}
	stageDuration.WithLabelValues("text", string(txt.Via)).Observe(textDur.Seconds())
	textChars.Observe(float64(txt.Chars()))

	if mode == textsource.ModeOCR && txt.Chars() < o.opts.MinOCRChars {
		extractionsTotal.WithLabelValues(string(tier), outcomeTextEmpty).Inc()
		return nil, eris.Wrapf(ErrTextEmpty, "pipeline: ocr text has %d chars", txt.Chars())
	}

	windowed := window.Build(txt.Text)

	llmStart := time.Now()
	res, err := o.llm.Extract(ctx, up.UploadID, tier, up.InsurerHint, windowed)
	llmDur := time.Since(llmStart)
	stageDuration.WithLabelValues("llm", string(txt.Via)).Observe(llmDur.Seconds())
	if err != nil {
		extractionsTotal.WithLabelValues(string(tier), outcomeLLMFailed).Inc()
		return nil, err
	}

	rec := fromResult(res, txt, o.catalog)
	if o.opts.AssistDebug {
		assist.Trace(txt.Text)
	}
	rec = o.catalog.Apply(txt.Text, rec)
	rec = gate.Harden(rec, txt.Text)

	if err := model.Validate(rec); err != nil {
		extractionsTotal.WithLabelValues(string(tier), outcomeInvalid).Inc()
		log.Error("pipeline: extraction failed validation", zap.Error(err))
		return nil, eris.Wrap(err, "pipeline: validate extraction")
	}

	total := time.Since(start)
	stageDuration.WithLabelValues("total", string(txt.Via)).Observe(total.Seconds())
	extractionsTotal.WithLabelValues(string(tier), outcomeOK).Inc()

	meta := Meta{
		Via:               txt.Via,
		ModelTag:          tier,
		TextCharCount:     txt.Chars(),
		TextAcquisitionMS: textDur.Milliseconds(),
		LLMMS:             llmDur.Milliseconds(),
		TotalMS:           total.Milliseconds(),
	}
	log.Info("pipeline: extraction complete",
		zap.String("via", string(meta.Via)),
		zap.Int("text_chars", meta.TextCharCount),
		zap.Int64("text_ms", meta.TextAcquisitionMS),
		zap.Int64("llm_ms", meta.LLMMS),
		zap.Int64("total_ms", meta.TotalMS),
	)
	return &Response{Data: rec, Meta: meta}, nil
}

// fromResult wraps the model's raw values as llm-sourced fields. The
// model's insurer is kept only when a catalog legal name appears in the
// text; a guess with no such evidence is dropped.
func fromResult(res *llm.Result, txt textsource.Text, catalog *assist.Catalog) model.PolicyExtract {
	d := res.Data
	rec := model.NewPolicyExtract()

	insurer := d.Insurer
	if insurer != nil {
		if _, ok := catalog.MatchInsurer(txt.Text); !ok {
			insurer = nil
		}
	}
	rec.Insurer = model.LLM(insurer, confInsurer)
	rec.PolicyNumber = model.LLM(d.PolicyNumber, confPolicy)
	rec.VehicleNumber = model.LLM(d.VehicleNumber, confVehicle)
	rec.IssueDate = model.LLM(isoOrNil(d.IssueDate), confDates)
	rec.ExpiryDate = model.LLM(isoOrNil(d.ExpiryDate), confDates)
	rec.TotalPremium = model.LLM(d.TotalPremium, confPremium)
	rec.IDV = model.LLM(d.IDV, confIDV)

	rec.Debug = &model.Debug{EvidenceSnippet: EvidenceSnippet}
	if txt.Pages > 0 {
		pages := txt.Pages
		rec.Debug.PagesScanned = &pages
	}
	return rec
}

// isoOrNil normalizes a model date to YYYY-MM-DD, dropping anything that is
// not a recognizable date.
func isoOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	if isoDateRe.MatchString(*s) {
		return s
	}
	if iso, ok := assist.ToISO(*s); ok {
		return &iso
	}
	return nil
}
