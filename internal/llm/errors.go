package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sashabaranov/go-openai"

	"github.com/nicsan/crm-extract/internal/model"
	"github.com/nicsan/crm-extract/pkg/anthropic"
)

// Error code suffixes. The full code is prefixed with the tier, for example
// "primary_timeout".
const (
	CodeTimeout     = "timeout"
	CodeNetwork     = "network"
	CodeInvalidJSON = "invalid_json"
	CodeSchema      = "schema"
	CodeUnknown     = "unknown"
)

// Detail describes the underlying failure for the caller's diagnostics.
type Detail struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Status  *int   `json:"status"`
	Data    any    `json:"data"`
}

// ExtractionError is returned for every failed extraction.
type ExtractionError struct {
	Code   string `json:"code"`
	Hint   string `json:"hint"`
	Detail Detail `json:"detail"`

	err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("llm: %s: %s", e.Code, e.Detail.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.err
}

// Is reports whether target is an ExtractionError with the same code.
func (e *ExtractionError) Is(target error) bool {
	t, ok := target.(*ExtractionError)
	return ok && t.Code == e.Code
}

func newExtractionError(tier model.Tier, code, hint string, err error) *ExtractionError {
	return &ExtractionError{
		Code: string(tier) + "_" + code,
		Hint: hint,
		Detail: Detail{
			Name:    errorName(err),
			Message: err.Error(),
		},
		err: err,
	}
}

// classify maps a backend failure onto an ExtractionError. callCtx is the
// timeout-bounded context the call ran under.
func classify(tier model.Tier, callCtx context.Context, err error) *ExtractionError {
	var re *replyError
	if errors.As(err, &re) {
		switch re.kind {
		case kindInvalidJSON:
			return newExtractionError(tier, CodeInvalidJSON, "model reply was not valid JSON", err)
		case kindSchema:
			return newExtractionError(tier, CodeSchema, "model reply did not match the schema", err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return newExtractionError(tier, CodeTimeout, "model did not answer before the deadline", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := newExtractionError(tier, CodeNetwork, "model API returned an error", err)
		e.Detail.Status = statusPtr(apiErr.HTTPStatusCode)
		e.Detail.Data = map[string]any{"type": apiErr.Type, "code": apiErr.Code}
		return e
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		e := newExtractionError(tier, CodeNetwork, "model API request failed", err)
		e.Detail.Status = statusPtr(reqErr.HTTPStatusCode)
		if len(reqErr.Body) > 0 {
			e.Detail.Data = truncate(string(reqErr.Body), 1000)
		}
		return e
	}
	if status, ok := anthropic.StatusCode(err); ok {
		e := newExtractionError(tier, CodeNetwork, "model API returned an error", err)
		e.Detail.Status = statusPtr(status)
		return e
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return newExtractionError(tier, CodeNetwork, "could not reach the model API", err)
	}

	return newExtractionError(tier, CodeUnknown, "unexpected extraction failure", err)
}

func statusPtr(code int) *int {
	if code == 0 {
		return nil
	}
	return &code
}

// errorName reports the type of the innermost error in the chain.
func errorName(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
