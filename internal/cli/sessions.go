package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/llmtape/internal/store"
)

var sessionsStoreDir string

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().StringVar(&sessionsStoreDir, "store-dir", "", "Session directory (default: ~/.llmtape/sessions)")
	sessionsCmd.AddCommand(sessionsRmCmd)
	sessionsRmCmd.Flags().StringVar(&sessionsStoreDir, "store-dir", "", "Session directory (default: ~/.llmtape/sessions)")
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(sessionsStoreDir)
		if err != nil {
			return err
		}
		infos, err := st.List()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Printf("No sessions in %s\n", st.Dir())
			return nil
		}

		for _, info := range infos {
			scrubbed := "?"
			records := "?"
			if info.Meta != nil {
				if info.Meta.Scrubbed {
					scrubbed = "yes"
				} else {
					scrubbed = "NO"
				}
				records = fmt.Sprintf("%d", info.Meta.Records)
			}
			fmt.Printf("%-52s %8s  %5s calls  scrubbed=%-3s  %s\n",
				info.ID,
				humanize.Bytes(uint64(info.Size)),
				records,
				scrubbed,
				humanize.Time(info.ModTime),
			)
		}
		return nil
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Delete a recorded session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(sessionsStoreDir)
		if err != nil {
			return err
		}
		if err := st.Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}
