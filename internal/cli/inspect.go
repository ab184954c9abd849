package cli

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/llmtape/internal/store"
	"github.com/ppiankov/llmtape/internal/tape"
)

var (
	inspectStoreDir string
	inspectRecover  bool
	inspectVerbose  bool
)

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectStoreDir, "store-dir", "", "Session directory (default: ~/.llmtape/sessions)")
	inspectCmd.Flags().BoolVar(&inspectRecover, "recover", false, "Rebuild a sealed copy from an unsealed or damaged session")
	inspectCmd.Flags().BoolVar(&inspectVerbose, "v", false, "Print every record, not just the summary")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Scan a session file and report its contents",
	Long:  "Walks the record region linearly, ignoring the index, and reports what\nis readable. With --recover, writes the readable records to a new\nsealed session that can be replayed.",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	st, err := store.Open(inspectStoreDir)
	if err != nil {
		return err
	}
	id := args[0]
	path, err := st.Resolve(id)
	if err != nil {
		return err
	}

	var good, corrupt int
	h, sealed, err := tape.Scan(path, func(off int64, rec *tape.Record, cerr *tape.CorruptRecordError) bool {
		if cerr != nil {
			corrupt++
			fmt.Printf("  CORRUPT at offset %d: %v\n", off, cerr.Err)
			return true
		}
		good++
		if inspectVerbose {
			fmt.Printf("  %4d  hash=%s  req=%d resp=%d  latency=%dms\n",
				good-1,
				hex.EncodeToString(rec.Hash[:8]),
				len(rec.Request),
				len(rec.Response),
				rec.LatencyMS,
			)
		}
		return true
	})
	if err != nil {
		return err
	}

	state := "UNSEALED"
	if sealed {
		state = "sealed"
	}
	fmt.Printf("%s: %s, %d readable records, %d corrupt\n", id, state, good, corrupt)
	fmt.Printf("started %s\n", time.UnixMilli(int64(h.StartedAt)).UTC().Format(time.RFC3339))
	if len(h.Revision) > 0 {
		fmt.Printf("revision %s\n", hex.EncodeToString(h.Revision))
	}

	if !inspectRecover {
		if !sealed || corrupt > 0 {
			fmt.Println("Run with --recover to rebuild a sealed copy from the readable records.")
		}
		return nil
	}

	recID, recPath := st.NewSession(time.Now())
	res, err := tape.Recover(path, recPath)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}
	if err := st.WriteMeta(recID, &store.Meta{
		Records:   res.Recovered,
		StartedAt: h.StartedAt,
		SealedAt:  uint64(time.Now().UnixMilli()),
	}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	fmt.Printf("Recovered %d records (%d corrupt skipped) into %s\n", res.Recovered, res.Corrupt, recID)
	return nil
}
