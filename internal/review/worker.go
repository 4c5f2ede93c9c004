// Package review drives an upload through extraction and staff
// confirmation.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/model"
	"github.com/nicsan/crm-extract/internal/pipeline"
	"github.com/nicsan/crm-extract/internal/store"
)

// Extractor runs the extraction pipeline for one upload.
type Extractor interface {
	Extract(ctx context.Context, up pipeline.Upload, tier model.Tier) (*pipeline.Response, error)
}

// Worker moves uploads from UPLOADED to REVIEW.
type Worker struct {
	store     store.Store
	extractor Extractor
}

// NewWorker creates a Worker.
func NewWorker(st store.Store, ex Extractor) *Worker {
	return &Worker{store: st, extractor: ex}
}

// Process extracts the upload with the primary tier, persists the record
// and marks the upload REVIEW. Any failure after the upload is claimed puts
// it back to UPLOADED.
func (w *Worker) Process(ctx context.Context, uploadID string) (*model.Upload, error) {
	log := zap.L().With(zap.String("upload_id", uploadID))
	start := time.Now()

	if err := w.store.SetStatus(ctx, uploadID, model.StatusProcessing); err != nil {
		return nil, eris.Wrap(err, "review: claim upload")
	}

	if err := w.process(ctx, uploadID); err != nil {
		// The revert must land even when ctx is what failed.
		revertCtx := context.WithoutCancel(ctx)
		if rerr := w.store.SetStatus(revertCtx, uploadID, model.StatusUploaded); rerr != nil {
			log.Error("review: revert status failed", zap.Error(rerr))
		}
		log.Warn("review: processing failed", zap.Error(err))
		return nil, err
	}

	up, err := w.store.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, eris.Wrap(err, "review: reload upload")
	}
	log.Info("review: upload ready",
		zap.String("insurer_hint", up.InsurerHint),
		zap.Duration("elapsed", time.Since(start)),
	)
	return up, nil
}

func (w *Worker) process(ctx context.Context, uploadID string) error {
	up, err := w.store.GetUpload(ctx, uploadID)
	if err != nil {
		return eris.Wrap(err, "review: load upload")
	}

	resp, err := w.extractor.Extract(ctx, pipeline.Upload{
		DocumentKey: up.DocumentKey,
		UploadID:    up.ID,
		InsurerHint: up.InsurerHint,
	}, model.TierPrimary)
	if err != nil {
		return err
	}
	if err := model.Validate(resp.Data); err != nil {
		return eris.Wrap(err, "review: validate extraction")
	}

	data, err := json.Marshal(resp.Data)
	if err != nil {
		return eris.Wrap(err, "review: marshal extraction")
	}

	hint := up.InsurerHint
	if hint == "" {
		hint = model.InsurerHint(resp.Data.Insurer.Or(""))
	}
	if err := w.store.SaveExtraction(ctx, up.ID, data, hint); err != nil {
		return eris.Wrap(err, "review: save extraction")
	}
	if err := w.store.SetStatus(ctx, up.ID, model.StatusReview); err != nil {
		return eris.Wrap(err, "review: mark review")
	}
	return nil
}

// IsNotFound reports whether err means the upload does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
