package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/blob"
	"github.com/nicsan/crm-extract/internal/llm"
	"github.com/nicsan/crm-extract/internal/model"
	"github.com/nicsan/crm-extract/internal/monitoring"
	"github.com/nicsan/crm-extract/internal/pipeline"
	"github.com/nicsan/crm-extract/internal/review"
	"github.com/nicsan/crm-extract/internal/store"
	"github.com/nicsan/crm-extract/internal/textsource"
)

// Error codes returned by the HTTP API beside the llm and pipeline codes.
const (
	codeUploadNotFound   = "upload_not_found"
	codeTextAcquisition  = "text_acquisition_failed"
	codeValidation       = "validation_failed"
	codeExtractInvalid   = "extraction_invalid"
	codeNotReviewable    = "upload_not_reviewable"
	codeInvalidBody      = "invalid_body"
	codeInvalidParameter = "invalid_parameter"
	codeInternal         = "internal_error"
)

const maxBodyBytes = 1 << 20

type uploadReader interface {
	GetUpload(ctx context.Context, id string) (*model.Upload, error)
	ListUploads(ctx context.Context, filter store.UploadFilter) ([]model.Upload, error)
	RecentPolicies(ctx context.Context, limit int) ([]model.Policy, error)
}

type extractService interface {
	ExtractWith(ctx context.Context, up pipeline.Upload, tier model.Tier, mode textsource.Mode) (*pipeline.Response, error)
}

type uploadProcessor interface {
	Process(ctx context.Context, uploadID string) (*model.Upload, error)
}

type policyConfirmer interface {
	ConfirmSave(ctx context.Context, uploadID string, body []byte) (*model.Policy, error)
}

type statsCollector interface {
	Collect(ctx context.Context) (*monitoring.Snapshot, error)
}

// api holds the collaborators behind the HTTP routes.
type api struct {
	uploads   uploadReader
	extractor extractService
	worker    uploadProcessor
	confirmer policyConfirmer
	stats     statsCollector
}

func newAPI(env *pipelineEnv) *api {
	return &api{
		uploads:   env.Store,
		extractor: env.Orchestrator,
		worker:    env.Worker,
		confirmer: env.Confirmer,
		stats:     env.Collector,
	}
}

// newRouter builds the chi router. An empty origins list allows any origin.
func newRouter(a *api, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/stats", a.handleStats)

	r.Post("/extract/pdf/{uploadID}", a.handleExtract(textsource.ModeAuto))
	r.Post("/extract/pdf/{uploadID}/ocr", a.handleExtract(textsource.ModeOCR))

	r.Get("/uploads", a.handleListUploads)
	r.Post("/uploads/{uploadID}/process", a.handleProcess)
	r.Post("/uploads/{uploadID}/confirm-save", a.handleConfirmSave)
	r.Get("/policies/recent", a.handleRecentPolicies)

	return r
}

type extractRequest struct {
	Model string `json:"model"`
}

func (a *api) handleExtract(mode textsource.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID := chi.URLParam(r, "uploadID")

		var req extractRequest
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeFailure(w, http.StatusBadRequest, codeInvalidBody, err.Error())
			return
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeFailure(w, http.StatusBadRequest, codeInvalidBody, "body must be {\"model\":\"primary\"|\"secondary\"}")
				return
			}
		}
		tier := model.ParseTier(req.Model)

		up, err := a.uploads.GetUpload(r.Context(), uploadID)
		if err != nil {
			writeError(w, err)
			return
		}

		resp, err := a.extractor.ExtractWith(r.Context(), pipeline.Upload{
			DocumentKey: up.DocumentKey,
			UploadID:    up.ID,
			InsurerHint: up.InsurerHint,
		}, tier, mode)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":   true,
			"data": resp.Data,
			"meta": resp.Meta,
		})
	}
}

func (a *api) handleProcess(w http.ResponseWriter, r *http.Request) {
	up, err := a.worker.Process(r.Context(), chi.URLParam(r, "uploadID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "upload": up})
}

func (a *api) handleConfirmSave(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, codeInvalidBody, err.Error())
		return
	}

	p, err := a.confirmer.ConfirmSave(r.Context(), chi.URLParam(r, "uploadID"), body)
	if err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"ok":     false,
				"code":   codeValidation,
				"errors": ve.Violations,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "policy": p})
}

func (a *api) handleListUploads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.UploadFilter{}

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, ok := model.ParseStatus(s)
			if !ok {
				writeFailure(w, http.StatusBadRequest, codeInvalidParameter, "unknown status "+strconv.Quote(s))
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	uploads, err := a.uploads.ListUploads(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if uploads == nil {
		uploads = []model.Upload{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "uploads": uploads})
}

func (a *api) handleRecentPolicies(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r.URL.Query().Get("limit"), "limit")
	if !ok {
		return
	}
	policies, err := a.uploads.RecentPolicies(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if policies == nil {
		policies = []model.Policy{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "policies": policies})
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := a.stats.Collect(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// intParam parses an optional non-negative integer query parameter. It
// writes a 400 and returns false when the value is malformed.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeFailure(w, http.StatusBadRequest, codeInvalidParameter, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// writeError maps a service error onto the API's error envelope.
func writeError(w http.ResponseWriter, err error) {
	var (
		ee *llm.ExtractionError
		ae *textsource.AcquisitionError
		ve *model.ValidationError
		se *json.SyntaxError
		te *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeFailure(w, http.StatusNotFound, codeUploadNotFound, "")
	case errors.As(err, &ee):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"ok":     false,
			"code":   ee.Code,
			"hint":   ee.Hint,
			"detail": ee.Detail,
		})
	case errors.Is(err, pipeline.ErrTextEmpty):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"ok":   false,
			"code": pipeline.CodeTextEmpty,
			"hint": "OCR found too little text in the document",
		})
	case errors.As(err, &ae):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"ok":     false,
			"code":   codeTextAcquisition,
			"hint":   ae.Stage,
			"detail": acquisitionDetail(ae),
		})
	case errors.Is(err, review.ErrNotReviewable):
		writeFailure(w, http.StatusConflict, codeNotReviewable, err.Error())
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"ok":     false,
			"code":   codeExtractInvalid,
			"errors": ve.Violations,
		})
	case errors.As(err, &se), errors.As(err, &te):
		writeFailure(w, http.StatusBadRequest, codeInvalidBody, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeFailure(w, http.StatusGatewayTimeout, codeInternal, err.Error())
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, codeInternal, err.Error())
	}
}

func acquisitionDetail(ae *textsource.AcquisitionError) map[string]any {
	detail := map[string]any{"key": ae.Key, "message": ae.Error()}
	var nf *blob.NotFoundError
	if errors.As(ae, &nf) {
		detail["tried"] = nf.Tried
		detail["nearby"] = nf.Nearby
	}
	return detail
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	body := map[string]any{"ok": false, "code": code}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
