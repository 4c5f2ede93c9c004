//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicsan/crm-extract/internal/blob"
	"github.com/nicsan/crm-extract/internal/llm"
	"github.com/nicsan/crm-extract/internal/model"
	"github.com/nicsan/crm-extract/internal/monitoring"
	"github.com/nicsan/crm-extract/internal/pipeline"
	"github.com/nicsan/crm-extract/internal/review"
	"github.com/nicsan/crm-extract/internal/store"
	"github.com/nicsan/crm-extract/internal/textsource"
)

type fakeUploads struct {
	uploads  map[string]*model.Upload
	policies []model.Policy
	gotList  store.UploadFilter
	gotLimit int
}

func (f *fakeUploads) GetUpload(_ context.Context, id string) (*model.Upload, error) {
	up, ok := f.uploads[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "fake: get upload %s", id)
	}
	return up, nil
}

func (f *fakeUploads) ListUploads(_ context.Context, filter store.UploadFilter) ([]model.Upload, error) {
	f.gotList = filter
	var out []model.Upload
	for _, up := range f.uploads {
		out = append(out, *up)
	}
	return out, nil
}

func (f *fakeUploads) RecentPolicies(_ context.Context, limit int) ([]model.Policy, error) {
	f.gotLimit = limit
	return f.policies, nil
}

type fakeExtractor struct {
	fn      func(up pipeline.Upload, tier model.Tier, mode textsource.Mode) (*pipeline.Response, error)
	gotUp   pipeline.Upload
	gotTier model.Tier
	gotMode textsource.Mode
}

func (f *fakeExtractor) ExtractWith(_ context.Context, up pipeline.Upload, tier model.Tier, mode textsource.Mode) (*pipeline.Response, error) {
	f.gotUp, f.gotTier, f.gotMode = up, tier, mode
	return f.fn(up, tier, mode)
}

type fakeWorker struct {
	up  *model.Upload
	err error
}

func (f *fakeWorker) Process(_ context.Context, _ string) (*model.Upload, error) {
	return f.up, f.err
}

type fakeConfirmer struct {
	policy  *model.Policy
	err     error
	gotBody []byte
}

func (f *fakeConfirmer) ConfirmSave(_ context.Context, uploadID string, body []byte) (*model.Policy, error) {
	f.gotBody = body
	if f.err != nil {
		return nil, f.err
	}
	p := *f.policy
	p.UploadID = uploadID
	return &p, nil
}

type fakeStats struct {
	snap *monitoring.Snapshot
	err  error
}

func (f *fakeStats) Collect(_ context.Context) (*monitoring.Snapshot, error) {
	return f.snap, f.err
}

func newTestAPI() (*api, *fakeUploads, *fakeExtractor) {
	uploads := &fakeUploads{uploads: map[string]*model.Upload{
		"up-1": {ID: "up-1", DocumentKey: "uploads/up-1/policy.pdf", Status: model.StatusReview, InsurerHint: model.InsurerTataAIG},
	}}
	ex := &fakeExtractor{fn: func(up pipeline.Upload, tier model.Tier, mode textsource.Mode) (*pipeline.Response, error) {
		rec := model.NewPolicyExtract()
		rec.PolicyNumber = model.LLM(strPtr("TA-9921"), 0.95)
		return &pipeline.Response{Data: rec, Meta: pipeline.Meta{Via: textsource.ViaFast, ModelTag: tier}}, nil
	}}
	a := &api{
		uploads:   uploads,
		extractor: ex,
		worker:    &fakeWorker{},
		confirmer: &fakeConfirmer{},
		stats:     &fakeStats{},
	}
	return a, uploads, ex
}

func strPtr(s string) *string { return &s }

func serve(t *testing.T, a *api, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	newRouter(a, nil).ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestAPI()

	rr := serve(t, a, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decode(t, rr)["status"])
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestAPI()

	rr := serve(t, a, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestRouter_CORSPreflight(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestAPI()

	req := httptest.NewRequest(http.MethodOptions, "/uploads/up-1/confirm-save", nil)
	req.Header.Set("Origin", "https://crm.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	newRouter(a, []string{"https://crm.example.com"}).ServeHTTP(rr, req)

	assert.Equal(t, "https://crm.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_Extract(t *testing.T) {
	t.Parallel()
	a, _, ex := newTestAPI()

	rr := serve(t, a, http.MethodPost, "/extract/pdf/up-1", `{"model":"secondary"}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, true, body["ok"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "TA-9921", data["policy_number"].(map[string]any)["value"])
	assert.Equal(t, "secondary", body["meta"].(map[string]any)["model_tag"])

	assert.Equal(t, model.TierSecondary, ex.gotTier)
	assert.Equal(t, textsource.ModeAuto, ex.gotMode)
	assert.Equal(t, "uploads/up-1/policy.pdf", ex.gotUp.DocumentKey)
	assert.Equal(t, model.InsurerTataAIG, ex.gotUp.InsurerHint)
}

func TestRouter_ExtractEmptyBodyUsesPrimary(t *testing.T) {
	t.Parallel()
	a, _, ex := newTestAPI()

	rr := serve(t, a, http.MethodPost, "/extract/pdf/up-1", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.TierPrimary, ex.gotTier)
}

func TestRouter_ExtractOCRMode(t *testing.T) {
	t.Parallel()
	a, _, ex := newTestAPI()

	rr := serve(t, a, http.MethodPost, "/extract/pdf/up-1/ocr", `{}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, textsource.ModeOCR, ex.gotMode)
}

func TestRouter_ExtractErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "unknown upload",
			path:     "/extract/pdf/missing",
			wantCode: http.StatusNotFound,
			wantErr:  codeUploadNotFound,
		},
		{
			name:     "malformed body",
			path:     "/extract/pdf/up-1",
			body:     `{"model":`,
			wantCode: http.StatusBadRequest,
			wantErr:  codeInvalidBody,
		},
		{
			name:     "llm timeout",
			path:     "/extract/pdf/up-1",
			err:      &llm.ExtractionError{Code: "primary_timeout", Hint: "model call exceeded 4000ms", Detail: llm.Detail{Name: "DeadlineExceeded", Message: "context deadline exceeded"}},
			wantCode: http.StatusBadGateway,
			wantErr:  "primary_timeout",
		},
		{
			name:     "ocr text too short",
			path:     "/extract/pdf/up-1/ocr",
			err:      eris.Wrapf(pipeline.ErrTextEmpty, "pipeline: ocr text has %d chars", 7),
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  pipeline.CodeTextEmpty,
		},
		{
			name: "document missing in bucket",
			path: "/extract/pdf/up-1",
			err: &textsource.AcquisitionError{
				Stage: textsource.StageFetch,
				Key:   "uploads/up-1/policy.pdf",
				Err:   &blob.NotFoundError{Bucket: "docs", Tried: []string{"uploads/up-1/policy.pdf"}},
			},
			wantCode: http.StatusBadGateway,
			wantErr:  codeTextAcquisition,
		},
		{
			name:     "extraction fails validation",
			path:     "/extract/pdf/up-1",
			err:      eris.Wrap(&model.ValidationError{Violations: []model.Violation{{Field: "issue_date", Constraint: "YYYY-MM-DD"}}}, "pipeline: validate extraction"),
			wantCode: http.StatusBadGateway,
			wantErr:  codeExtractInvalid,
		},
		{
			name:     "unexpected failure",
			path:     "/extract/pdf/up-1",
			err:      errors.New("boom"),
			wantCode: http.StatusInternalServerError,
			wantErr:  codeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, _, ex := newTestAPI()
			if tt.err != nil {
				ex.fn = func(pipeline.Upload, model.Tier, textsource.Mode) (*pipeline.Response, error) {
					return nil, tt.err
				}
			}

			rr := serve(t, a, http.MethodPost, tt.path, tt.body)

			assert.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
			body := decode(t, rr)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.wantErr, body["code"])
		})
	}
}

func TestRouter_ExtractErrorEnvelope(t *testing.T) {
	t.Parallel()
	a, _, ex := newTestAPI()
	ex.fn = func(pipeline.Upload, model.Tier, textsource.Mode) (*pipeline.Response, error) {
		return nil, &textsource.AcquisitionError{
			Stage: textsource.StageFetch,
			Key:   "uploads/up-1/policy.pdf",
			Err: &blob.NotFoundError{
				Bucket: "docs",
				Tried:  []string{"crm/uploads/up-1/policy.pdf", "uploads/up-1/policy.pdf"},
				Nearby: []string{"uploads/up-1/policy (1).pdf"},
			},
		}
	}

	rr := serve(t, a, http.MethodPost, "/extract/pdf/up-1", "")

	require.Equal(t, http.StatusBadGateway, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, textsource.StageFetch, body["hint"])
	detail := body["detail"].(map[string]any)
	assert.Len(t, detail["tried"], 2)
	assert.Equal(t, []any{"uploads/up-1/policy (1).pdf"}, detail["nearby"])
}

func TestRouter_LLMErrorEnvelope(t *testing.T) {
	t.Parallel()
	a, _, ex := newTestAPI()
	status := 429
	ex.fn = func(pipeline.Upload, model.Tier, textsource.Mode) (*pipeline.Response, error) {
		return nil, &llm.ExtractionError{
			Code:   "secondary_network",
			Hint:   "upstream rejected the request",
			Detail: llm.Detail{Name: "APIError", Message: "rate limited", Status: &status},
		}
	}

	rr := serve(t, a, http.MethodPost, "/extract/pdf/up-1", `{"model":"secondary"}`)

	require.Equal(t, http.StatusBadGateway, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "upstream rejected the request", body["hint"])
	detail := body["detail"].(map[string]any)
	assert.Equal(t, "APIError", detail["name"])
	assert.EqualValues(t, 429, detail["status"])
}

func TestRouter_Process(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestAPI()
	a.worker = &fakeWorker{up: &model.Upload{ID: "up-1", Status: model.StatusReview, InsurerHint: model.InsurerDigit}}

	rr := serve(t, a, http.MethodPost, "/uploads/up-1/process", "")

	require.Equal(t, http.StatusOK, rr.Code)
	up := decode(t, rr)["upload"].(map[string]any)
	assert.Equal(t, "REVIEW", up["status"])
	assert.Equal(t, model.InsurerDigit, up["insurer_hint"])
}

func TestRouter_ProcessUnknownUpload(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestAPI()
	a.worker = &fakeWorker{err: eris.Wrap(store.ErrNotFound, "review: claim upload")}

	rr := serve(t, a, http.MethodPost, "/uploads/nope/process", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, codeUploadNotFound, decode(t, rr)["code"])
}

func TestRouter_ConfirmSave(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestAPI()
	conf := &fakeConfirmer{policy: &model.Policy{ID: "pol-1", PolicyNumber: "TA-9921", CreatedAt: time.Now().UTC()}}
	a.confirmer = conf

	payload := `{"schema_version":"1.0","policy_number":{"value":"TA-9921","source":"manual","confidence":1}}`
	rr := serve(t, a, http.MethodPost, "/uploads/up-1/confirm-save", payload)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	p := decode(t, rr)["policy"].(map[string]any)
	assert.Equal(t, "pol-1", p["id"])
	assert.Equal(t, "up-1", p["upload_id"])
	assert.JSONEq(t, payload, string(conf.gotBody))
}

func TestRouter_ConfirmSaveErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name: "field errors",
			err: &model.ValidationError{Violations: []model.Violation{
				{Field: "insurer", Constraint: "required"},
				{Field: "total_premium", Constraint: "must be >= 0"},
			}},
			wantCode: http.StatusBadRequest,
			wantErr:  codeValidation,
		},
		{
			name:     "wrong status",
			err:      eris.Wrapf(review.ErrNotReviewable, "review: upload up-1 is %s", model.StatusSaved),
			wantCode: http.StatusConflict,
			wantErr:  codeNotReviewable,
		},
		{
			name:     "unknown upload",
			err:      eris.Wrap(store.ErrNotFound, "review: load upload"),
			wantCode: http.StatusNotFound,
			wantErr:  codeUploadNotFound,
		},
		{
			name:     "malformed body",
			err:      eris.Wrap(&json.SyntaxError{Offset: 3}, "review: decode confirm-save body"),
			wantCode: http.StatusBadRequest,
			wantErr:  codeInvalidBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, _, _ := newTestAPI()
			a.confirmer = &fakeConfirmer{err: tt.err}

			rr := serve(t, a, http.MethodPost, "/uploads/up-1/confirm-save", `{"edits":{}}`)

			assert.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
			assert.Equal(t, tt.wantErr, decode(t, rr)["code"])
		})
	}
}

func TestRouter_ConfirmSaveFieldErrorsListed(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestAPI()
	a.confirmer = &fakeConfirmer{err: &model.ValidationError{Violations: []model.Violation{
		{Field: "vehicle_number", Constraint: "required"},
	}}}

	rr := serve(t, a, http.MethodPost, "/uploads/up-1/confirm-save", `{}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	errs := decode(t, rr)["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "vehicle_number", errs[0].(map[string]any)["field"])
}

func TestRouter_ListUploads(t *testing.T) {
	t.Parallel()
	a, uploads, _ := newTestAPI()

	rr := serve(t, a, http.MethodGet, "/uploads?status=review,uploaded&limit=5&offset=10", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["uploads"], 1)
	assert.Equal(t, []model.UploadStatus{model.StatusReview, model.StatusUploaded}, uploads.gotList.Statuses)
	assert.Equal(t, 5, uploads.gotList.Limit)
	assert.Equal(t, 10, uploads.gotList.Offset)
}

func TestRouter_ListUploadsBadParams(t *testing.T) {
	t.Parallel()

	for _, path := range []string{
		"/uploads?status=ARCHIVED",
		"/uploads?limit=ten",
		"/uploads?offset=-1",
	} {
		t.Run(path, func(t *testing.T) {
			t.Parallel()
			a, _, _ := newTestAPI()

			rr := serve(t, a, http.MethodGet, path, "")

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, codeInvalidParameter, decode(t, rr)["code"])
		})
	}
}

func TestRouter_RecentPolicies(t *testing.T) {
	t.Parallel()
	a, uploads, _ := newTestAPI()

	rr := serve(t, a, http.MethodGet, "/policies/recent?limit=3", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, uploads.gotLimit)
	// An empty result is still a JSON array.
	assert.Equal(t, []any{}, decode(t, rr)["policies"])
}

func TestRouter_Stats(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestAPI()
	a.stats = &fakeStats{snap: &monitoring.Snapshot{
		Counts:  map[model.UploadStatus]int{model.StatusUploaded: 2, model.StatusReview: 1},
		Total:   3,
		Backlog: 2,
	}}

	rr := serve(t, a, http.MethodGet, "/stats", "")

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["backlog"])
}

func TestRouter_StatsError(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestAPI()
	a.stats = &fakeStats{err: errors.New("db down")}

	rr := serve(t, a, http.MethodGet, "/stats", "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestAPI()

	req := httptest.NewRequest(http.MethodGet, "/uploads/up-1/confirm-save", bytes.NewReader(nil))
	rr := httptest.NewRecorder()
	newRouter(a, nil).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
