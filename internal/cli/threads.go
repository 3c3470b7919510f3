package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/maauso/mediaforge/internal/diag"
)

func newThreadsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "Report the OS threads and goroutines of this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := diag.Threads(cmd.Context())
			if err != nil {
				return &ExitError{Code: ExitFailed, Err: err}
			}
			return a.printer(cmd).print(report, func(w io.Writer) {
				fmt.Fprintf(w, "PID:        %d\n", report.PID)
				fmt.Fprintf(w, "Threads:    %d\n", report.Count)
				fmt.Fprintf(w, "Goroutines: %d\n", report.Goroutines)
				for _, t := range report.Threads {
					fmt.Fprintf(w, "  %-8d %s\n", t.ID, t.Name)
				}
			})
		},
	}
}
