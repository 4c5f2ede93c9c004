package main

import (
	"encoding/json"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/nicsan/crm-extract/internal/model"
	"github.com/nicsan/crm-extract/internal/pipeline"
	"github.com/nicsan/crm-extract/internal/textsource"
)

var (
	extractKey   string
	extractModel string
	extractMode  string
	extractHint  string
)

var extractCmd = &cobra.Command{
	Use:   "extract [uploadID]",
	Short: "Extract policy fields from one document and print the JSON result",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (len(args) == 0) == (extractKey == "") {
			return eris.New("extract: pass exactly one of <uploadID> or --key")
		}
		mode, err := textsource.ParseMode(extractMode)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		up := pipeline.Upload{DocumentKey: extractKey, InsurerHint: extractHint}
		if len(args) == 1 {
			stored, err := env.Store.GetUpload(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "extract: load upload")
			}
			up.DocumentKey = stored.DocumentKey
			up.UploadID = stored.ID
			if up.InsurerHint == "" {
				up.InsurerHint = stored.InsurerHint
			}
		}

		resp, err := env.Orchestrator.ExtractWith(ctx, up, model.ParseTier(extractModel), mode)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"ok":   true,
			"data": resp.Data,
			"meta": resp.Meta,
		})
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractKey, "key", "", "document key or s3:// URI (instead of an upload id)")
	extractCmd.Flags().StringVar(&extractModel, "model", string(model.TierPrimary), "model tier: primary or secondary")
	extractCmd.Flags().StringVar(&extractMode, "mode", string(textsource.ModeAuto), "text acquisition mode: auto, fast or ocr")
	extractCmd.Flags().StringVar(&extractHint, "hint", "", "insurer hint, e.g. TATA_AIG or DIGIT")
	rootCmd.AddCommand(extractCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
