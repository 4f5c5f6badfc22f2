package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/framewall/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB        bool
	resetSnapshots bool
	resetYes       bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Session Journal, Snapshots)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetSnapshots {
			resetDB = true
			resetSnapshots = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if resetYes || confirm(reader, "⚠️  Are you sure you want to DROP the session journal?") {
				if err := ensureDB(cmd.Context()); err != nil {
					utils.Die("Failed to connect to database", err, nil)
				}
				fmt.Println("🗑️  Clearing Session Journal...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		if resetSnapshots {
			dir := cfg.Snapshot.Dir
			switch {
			case dir == "":
				fmt.Println("ℹ️  No snapshot directory configured, skipping.")
			case resetYes || confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete all snapshots in %s?", dir)):
				fmt.Println("🗑️  Clearing Snapshots...")
				removeDir(dir)
			}
		}

		fmt.Println("✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "journal", false, "Drop the PostgreSQL session journal")
	resetCmd.Flags().BoolVar(&resetSnapshots, "snapshots", false, "Delete the snapshot directory")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
