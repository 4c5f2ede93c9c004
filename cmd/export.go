package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/export"
)

var (
	exportOut   string
	exportSince string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write confirmed policies to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseSince(exportSince)
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context(), "export")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		policies, err := st.ListPolicies(cmd.Context(), since)
		if err != nil {
			return eris.Wrap(err, "export: list policies")
		}
		if err := export.SavePolicies(exportOut, policies); err != nil {
			return err
		}

		zap.L().Info("policies exported",
			zap.String("path", exportOut),
			zap.Int("policies", len(policies)),
			zap.Time("since", since),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "policies.xlsx", "output workbook path")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only policies created at or after this RFC3339 time")
	rootCmd.AddCommand(exportCmd)
}

// parseSince parses an optional RFC3339 timestamp; empty means all time.
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "export: --since %q is not RFC3339", s)
	}
	return t, nil
}
