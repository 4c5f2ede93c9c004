package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nicsan/crm-extract/internal/model"
	"github.com/nicsan/crm-extract/internal/store"
)

var (
	processAll         bool
	processConcurrency int
)

var processCmd = &cobra.Command{
	Use:   "process [uploadID...]",
	Short: "Run the upload worker: extract, store the record and move uploads to REVIEW",
	RunE: func(cmd *cobra.Command, args []string) error {
		if processAll == (len(args) > 0) {
			return eris.New("process: pass upload ids or --all, not both")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if processConcurrency > 0 {
			cfg.Worker.Concurrency = processConcurrency
		}
		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		ids := args
		if processAll {
			ids, err = pendingUploads(ctx, env.Store)
			if err != nil {
				return err
			}
		}

		sum := processUploads(ctx, ids, cfg.Worker.Concurrency, env.Worker.Process)
		if sum.Failed > 0 {
			return eris.Errorf("process: %d of %d uploads failed", sum.Failed, len(ids))
		}
		return nil
	},
}

func init() {
	processCmd.Flags().BoolVar(&processAll, "all", false, "process every upload in UPLOADED status")
	processCmd.Flags().IntVar(&processConcurrency, "concurrency", 0, "uploads processed in parallel (default from config)")
	rootCmd.AddCommand(processCmd)
}

// pendingUploads pages through every UPLOADED upload, oldest page last.
func pendingUploads(ctx context.Context, st store.Store) ([]string, error) {
	var ids []string
	filter := store.UploadFilter{
		Statuses: []model.UploadStatus{model.StatusUploaded},
		Limit:    store.MaxUploadLimit,
	}
	for {
		page, err := st.ListUploads(ctx, filter)
		if err != nil {
			return nil, eris.Wrap(err, "process: list pending uploads")
		}
		for _, u := range page {
			ids = append(ids, u.ID)
		}
		if len(page) < filter.Limit {
			return ids, nil
		}
		filter.Offset += len(page)
	}
}

// processFunc runs the worker for one upload.
type processFunc func(ctx context.Context, uploadID string) (*model.Upload, error)

type processSummary struct {
	Succeeded int64
	Failed    int64
}

// processUploads runs fn over ids with at most concurrency in flight. A
// failed upload is logged and counted; it never stops the others.
func processUploads(ctx context.Context, ids []string, concurrency int, fn processFunc) processSummary {
	if len(ids) == 0 {
		zap.L().Info("no uploads to process")
		return processSummary{}
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing uploads",
		zap.Int("uploads", len(ids)),
		zap.Int("concurrency", concurrency),
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, id := range ids {
		g.Go(func() error {
			log := zap.L().With(zap.String("upload_id", id))

			up, err := fn(gctx, id)
			if err != nil {
				failed.Add(1)
				log.Error("upload processing failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("upload ready for review", zap.String("insurer_hint", up.InsurerHint))
			return nil
		})
	}
	_ = g.Wait()

	sum := processSummary{Succeeded: succeeded.Load(), Failed: failed.Load()}
	zap.L().Info("processing complete",
		zap.Int64("succeeded", sum.Succeeded),
		zap.Int64("failed", sum.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return sum
}
