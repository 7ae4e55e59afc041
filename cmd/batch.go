package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pimstack/aipopulate/internal/ingest"
	"github.com/pimstack/aipopulate/internal/model"
	"github.com/pimstack/aipopulate/internal/populate"
)

var (
	batchTemplateFile string
	batchItemsFile    string
	batchOutputFile   string
	batchAsync        bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Populate a batch of items from a JSONL or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		template, err := ingest.LoadTemplate(batchTemplateFile)
		if err != nil {
			return err
		}

		var items []model.BatchItem[model.PopulateRequest]
		switch strings.ToLower(filepath.Ext(batchItemsFile)) {
		case ".jsonl":
			items, err = ingest.LoadJSONL(batchItemsFile, *template)
		case ".xlsx":
			items, err = ingest.LoadXLSX(batchItemsFile, *template)
		default:
			return eris.Errorf("unsupported items file %q, want .jsonl or .xlsx", batchItemsFile)
		}
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return eris.New("no items to populate")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("populating batch",
			zap.Int("items", len(items)),
			zap.String("client_id", template.ClientID),
			zap.String("flow", template.Flow),
			zap.Bool("async", batchAsync))

		resp, err := env.Service.PopulateBatch(cmd.Context(), items, populate.BatchOptions{Async: batchAsync})
		if err != nil {
			return err
		}

		out := os.Stdout
		if batchOutputFile != "" {
			f, err := os.Create(batchOutputFile)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close()
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return eris.Wrap(err, "write output")
		}

		succeeded, failed := 0, 0
		for _, o := range resp.Outputs {
			if o.Error != nil {
				failed++
			} else {
				succeeded++
			}
		}
		zap.L().Info("batch complete",
			zap.Int("succeeded", succeeded),
			zap.Int("failed", failed))
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchTemplateFile, "template", "", "path to the YAML request template (required)")
	batchCmd.Flags().StringVar(&batchItemsFile, "items", "", "path to the JSONL or XLSX items file (required)")
	batchCmd.Flags().StringVar(&batchOutputFile, "output", "", "write results to this file instead of stdout")
	batchCmd.Flags().BoolVar(&batchAsync, "async", false, "run through the remote batch-file pipeline")
	_ = batchCmd.MarkFlagRequired("template")
	_ = batchCmd.MarkFlagRequired("items")
	rootCmd.AddCommand(batchCmd)
}
