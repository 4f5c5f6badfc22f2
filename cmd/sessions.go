package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/framewall/internal/types"
	"github.com/spf13/cobra"
)

var (
	sessionsSurface string
	sessionsLimit   int
)

var sessionsCmd = &cobra.Command{
	Use:         "sessions",
	Short:       "List recent stream sessions from the journal",
	Annotations: map[string]string{dbAnnotation: dbRequired},
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := DB.ListSessions(cmd.Context(), sessionsSurface, sessionsLimit)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		printSessions(os.Stdout, records)
		return nil
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsSurface, "surface", "", "Only show sessions for this surface")
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 50, "Maximum number of sessions to show")
	rootCmd.AddCommand(sessionsCmd)
}

func printSessions(out io.Writer, records []types.SessionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No sessions found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSURFACE\tADDRESS\tOPENED\tCLOSED\tRECEIVED\tDRAWN\tFAILED\tREASON")
	fmt.Fprintln(w, "--\t-------\t-------\t------\t------\t--------\t-----\t------\t------")

	for _, r := range records {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		closed := "open"
		if r.ClosedAt != nil {
			closed = r.ClosedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			id, r.Surface, r.Address, r.OpenedAt.Local().Format("2006-01-02 15:04:05"), closed,
			r.FramesReceived, r.FramesDrawn, r.DecodeFailures, r.CloseReason)
	}
	w.Flush()
}
