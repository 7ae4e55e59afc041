package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pimstack/aipopulate/internal/store"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent remote batch jobs from the local journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := store.NewSQLite(cfg.Jobs.Path)
		if err != nil {
			return err
		}
		defer jobs.Close()
		if err := jobs.Migrate(cmd.Context()); err != nil {
			return err
		}

		records, err := jobs.List(cmd.Context(), jobsLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no jobs recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tITEMS\tUPDATED\tERROR")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				rec.ID, rec.Name, rec.Status, rec.ItemCount,
				rec.UpdatedAt.Format("2006-01-02 15:04:05"), rec.Error)
		}
		return eris.Wrap(w.Flush(), "flush output")
	},
}

func init() {
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum jobs to list")
	rootCmd.AddCommand(jobsCmd)
}
