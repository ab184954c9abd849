package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/llmtape/internal/config"
	"github.com/ppiankov/llmtape/internal/live"
	"github.com/ppiankov/llmtape/internal/proxy"
	"github.com/ppiankov/llmtape/internal/scrub"
	"github.com/ppiankov/llmtape/internal/server"
	"github.com/ppiankov/llmtape/internal/store"
	"github.com/ppiankov/llmtape/internal/tape"
)

var (
	recordListen      string
	recordUpstream    string
	recordStoreDir    string
	recordNoScrub     bool
	recordScrubConfig string
	recordConfigPath  string
	recordViewer      bool
)

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVar(&recordListen, "listen", "", "Proxy listen address (default from config)")
	recordCmd.Flags().StringVar(&recordUpstream, "upstream", "", "Upstream LLM API URL (default from config)")
	recordCmd.Flags().StringVar(&recordStoreDir, "store-dir", "", "Session directory (default: ~/.llmtape/sessions)")
	recordCmd.Flags().BoolVar(&recordNoScrub, "no-scrub", false, "Disable secret redaction (recorded in session metadata)")
	recordCmd.Flags().StringVar(&recordScrubConfig, "scrub-config", "", "Path to scrub customization YAML")
	recordCmd.Flags().StringVar(&recordConfigPath, "config", "", "Path to config YAML (default: ~/.llmtape/config.yaml)")
	recordCmd.Flags().BoolVar(&recordViewer, "viewer", false, "Also serve the viewer API with a live stream")
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Start the recording proxy",
	Long:  "Proxy between agent and LLM API that forwards every call upstream and\nrecords the request/response pair to a session file.\nUsage: ANTHROPIC_BASE_URL=http://localhost:8384 python agent.py",
	RunE:  runRecord,
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(recordConfigPath)
	if err != nil {
		return err
	}
	if recordListen != "" {
		cfg.Proxy.Listen = recordListen
	}
	if recordUpstream != "" {
		cfg.Proxy.Upstream = recordUpstream
	}
	if recordStoreDir != "" {
		cfg.StoreDir = recordStoreDir
	}
	if recordNoScrub {
		cfg.Scrub = false
	}
	if recordScrubConfig != "" {
		cfg.ScrubConfig = recordScrubConfig
	}

	st, err := store.Open(cfg.StoreDir)
	if err != nil {
		return err
	}

	var scrubFn tape.ScrubFunc
	if cfg.Scrub {
		scrubCfg, err := scrub.LoadConfig(cfg.ScrubConfig)
		if err != nil {
			return err
		}
		scrubber, err := scrub.New(scrubCfg)
		if err != nil {
			return err
		}
		scrubFn = scrubber.Bytes
	} else {
		fmt.Fprintf(os.Stderr, "WARNING: scrubbing disabled, secrets will land on disk verbatim\n")
	}

	started := time.Now()
	id, path := st.NewSession(started)
	w, err := tape.OpenForCapture(path, &tape.Header{StartedAt: uint64(started.UnixMilli())}, scrubFn)
	if err != nil {
		return err
	}

	bcast := live.NewBroadcaster(0)
	srv, err := proxy.NewCaptureServer(proxy.CaptureConfig{
		Listen:   cfg.Proxy.Listen,
		Upstream: cfg.Proxy.Upstream,
	}, w, bcast)
	if err != nil {
		w.Abort()
		os.Remove(path)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintf(os.Stderr, "\nSealing session...\n")
		cancel()
	}()

	if recordViewer {
		viewer := server.New(server.Config{Listen: cfg.Viewer.Listen}, st, bcast)
		go func() {
			if err := viewer.Start(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "viewer error: %v\n", err)
			}
		}()
		if watcher, err := server.NewWatcher(viewer); err == nil {
			go watcher.Run(ctx)
		}
		fmt.Printf("Viewer API on http://%s (live stream at /api/live)\n", cfg.Viewer.Listen)
	}

	fmt.Printf("Recording session %s\n", id)
	fmt.Printf("Proxy listening on %s, upstream %s\n", cfg.Proxy.Listen, cfg.Proxy.Upstream)
	fmt.Printf("Set ANTHROPIC_BASE_URL=http://%s to route agent traffic\n", cfg.Proxy.Listen)
	fmt.Println("Press Ctrl+C to stop and seal the session")

	serveErr := srv.Start(ctx)

	if err := w.Finalize(); err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}
	meta := &store.Meta{
		Scrubbed:  cfg.Scrub,
		Records:   w.Count(),
		StartedAt: uint64(started.UnixMilli()),
		SealedAt:  uint64(time.Now().UnixMilli()),
		Upstream:  cfg.Proxy.Upstream,
	}
	if err := st.WriteMeta(id, meta); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	fmt.Printf("Sealed %s: %d calls recorded\n", id, w.Count())
	return serveErr
}
