package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"telcoetl/store"
)

func showRecentRuns(cmd *cobra.Command, auditPath string) error {
	s, err := store.OpenAudit(auditPath)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.Recent(20)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tPIPELINE\tSTATUS\tFILES\tROWS KEPT\tMESSAGE")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.StartedAt.Format(time.DateTime), r.Pipeline, r.Status,
			r.FilesSelected, r.RowsKept, r.Message)
	}
	return w.Flush()
}
