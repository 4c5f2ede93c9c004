package main

import (
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/blob"
	"github.com/nicsan/crm-extract/internal/model"
	"github.com/nicsan/crm-extract/internal/resilience"
)

var (
	uploadBy   string
	uploadHint string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Store a policy PDF and register it as an UPLOADED upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "upload: read file")
		}
		if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
			return eris.Errorf("upload: %s is %s, not a PDF", args[0], mt.String())
		}

		st, err := openStore(ctx, "upload")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		awsCfg, err := blob.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return err
		}
		blobs := blob.NewS3Store(
			blob.NewS3Client(awsCfg, cfg.AWS.Endpoint),
			cfg.S3,
			resilience.FromAWSConfig(cfg.AWS, "s3", "put_object"),
		)

		id := uuid.NewString()
		loc, err := blobs.PutBlob(ctx, "uploads/"+id+"/"+filepath.Base(args[0]), data)
		if err != nil {
			return err
		}

		up, err := st.CreateUpload(ctx, model.Upload{
			ID:          id,
			DocumentKey: loc.Key,
			InsurerHint: model.InsurerHint(uploadHint),
			UploadedBy:  uploadBy,
		})
		if err != nil {
			return eris.Wrap(err, "upload: register upload")
		}

		zap.L().Info("upload registered", zap.String("upload_id", up.ID), zap.String("location", loc.String()))
		return printJSON(cmd.OutOrStdout(), up)
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadBy, "by", "", "uploader recorded on the upload")
	uploadCmd.Flags().StringVar(&uploadHint, "hint", "", "insurer name or hint, e.g. \"Tata AIG\"")
	rootCmd.AddCommand(uploadCmd)
}
