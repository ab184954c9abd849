package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/llmtape/internal/config"
	"github.com/ppiankov/llmtape/internal/server"
	"github.com/ppiankov/llmtape/internal/store"
)

var (
	serveListen     string
	serveStoreDir   string
	serveConfigPath string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Viewer listen address (default from config)")
	serveCmd.Flags().StringVar(&serveStoreDir, "store-dir", "", "Session directory (default: ~/.llmtape/sessions)")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config YAML (default: ~/.llmtape/config.yaml)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session browsing API",
	Long:  "HTTP API over the session store: listings, per-session metadata, and\nraw tape downloads. The listing tracks the directory live.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Viewer.Listen = serveListen
	}
	if serveStoreDir != "" {
		cfg.StoreDir = serveStoreDir
	}

	st, err := store.Open(cfg.StoreDir)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{Listen: cfg.Viewer.Listen}, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	watcher, err := server.NewWatcher(srv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: directory watch unavailable: %v\n", err)
	} else {
		go watcher.Run(ctx)
	}

	fmt.Printf("Viewer API on http://%s over %s\n", cfg.Viewer.Listen, st.Dir())
	fmt.Println("Press Ctrl+C to stop")
	return srv.Start(ctx)
}
