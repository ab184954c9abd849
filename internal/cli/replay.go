package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/llmtape/internal/config"
	"github.com/ppiankov/llmtape/internal/proxy"
	"github.com/ppiankov/llmtape/internal/store"
	"github.com/ppiankov/llmtape/internal/tape"
)

var (
	replayListen     string
	replayStoreDir   string
	replayConfigPath string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayListen, "listen", "", "Proxy listen address (default from config)")
	replayCmd.Flags().StringVar(&replayStoreDir, "store-dir", "", "Session directory (default: ~/.llmtape/sessions)")
	replayCmd.Flags().StringVar(&replayConfigPath, "config", "", "Path to config YAML (default: ~/.llmtape/config.yaml)")
}

var replayCmd = &cobra.Command{
	Use:   "replay [session-id]",
	Short: "Serve a recorded session, no network",
	Long:  "Answers requests from a sealed session file by content hash. A request\nthat was never recorded gets a 404; replay never calls upstream.\nWith no argument, replays the most recent session.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(replayConfigPath)
	if err != nil {
		return err
	}
	if replayListen != "" {
		cfg.Proxy.Listen = replayListen
	}
	if replayStoreDir != "" {
		cfg.StoreDir = replayStoreDir
	}

	st, err := store.Open(cfg.StoreDir)
	if err != nil {
		return err
	}

	var id, path string
	if len(args) == 1 {
		id = args[0]
		path, err = st.Resolve(id)
		if err != nil {
			return err
		}
	} else {
		latest, err := st.Latest()
		if err != nil {
			return err
		}
		id, path = latest.ID, latest.Path
	}

	sess, err := tape.OpenForReplay(path)
	if err != nil {
		return fmt.Errorf("cannot replay %s: %w", id, err)
	}
	defer sess.Close()

	srv := proxy.NewReplayServer(proxy.ReplayConfig{Listen: cfg.Proxy.Listen}, sess)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Printf("Replaying session %s (%d calls)\n", id, sess.Count())
	fmt.Printf("Proxy listening on %s (strictly offline)\n", cfg.Proxy.Listen)
	fmt.Printf("Set ANTHROPIC_BASE_URL=http://%s to route agent traffic\n", cfg.Proxy.Listen)
	fmt.Println("Press Ctrl+C to stop")

	err = srv.Start(ctx)

	fmt.Printf("\nReplay finished: %d hits, %d misses\n", srv.Hits(), srv.Misses())
	return err
}
