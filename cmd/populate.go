package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pimstack/aipopulate/internal/model"
)

var populateRequestFile string

var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Populate one request from a JSON file and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(populateRequestFile)
		if err != nil {
			return eris.Wrap(err, "read request file")
		}
		var req model.PopulateRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return eris.Wrap(err, "parse request file")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Service.PopulateOne(cmd.Context(), req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	populateCmd.Flags().StringVar(&populateRequestFile, "request", "", "path to a JSON populate request (required)")
	_ = populateCmd.MarkFlagRequired("request")
	rootCmd.AddCommand(populateCmd)
}
