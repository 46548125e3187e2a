package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ayxsth/cloudymate/internal/config"
	"github.com/ayxsth/cloudymate/internal/logger"
	"github.com/ayxsth/cloudymate/rag"
)

var (
	// version is set at build time
	version = "dev"

	// CLI flags
	configPath string
	debug      bool
	serveAddr  string
	askK       int
	askCopy    bool
	askJSON    bool
	resetYes   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cloudymate",
		Short:         "Ask questions about your AWS documentation",
		Long:          "CloudyMate answers questions about AWS using PDFs you upload, grounded in their content.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (default cloudymate.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")

	ingestCmd := &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Validate and index one or more PDF files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	askCmd.Flags().IntVarP(&askK, "top-k", "k", 0, "Number of chunks to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askCopy, "copy", false, "Copy the answer to the clipboard")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the raw JSON answer")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every indexed chunk",
		Args:  cobra.NoArgs,
		RunE:  runReset,
	}
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show configuration and index size",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, chatCmd, resetCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		showError(err.Error())
		os.Exit(1)
	}
}

// setup loads configuration and builds the application. CLI commands log to
// stderr so their stdout stays clean.
func setup(ctx context.Context, toStderr bool) (*App, error) {
	if toStderr {
		logger.SetOutput(os.Stderr)
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(debug || cfg.Log.Debug)
	if debug {
		cfg.Log.Debug = true
	}

	return newApp(ctx, cfg)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	addr := app.Config.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewServer(app.Pipeline, app.Config.Server.UploadDir, app.Config.Server.MaxUploadMB<<20).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server running on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			showError(fmt.Sprintf("%s: %v", path, err))
			failed++
			continue
		}
		showInfo(fmt.Sprintf("Processing %s...", path))
		result, err := app.Pipeline.Ingest(ctx, filepath.Base(path), data)
		if err != nil {
			var rej *rag.RejectionError
			if errors.As(err, &rej) {
				showError(fmt.Sprintf("%s rejected: %s", path, rej.Reason))
			} else {
				showError(fmt.Sprintf("%s: %v", path, err))
			}
			failed++
			continue
		}
		showSuccess(result.Message)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	query := strings.Join(args, " ")
	answer, err := app.Pipeline.Ask(ctx, rag.AskRequest{Query: query, K: askK})
	if err != nil {
		return askError(err)
	}

	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(answer); err != nil {
			return err
		}
	} else {
		printAnswer(answer)
	}

	if askCopy {
		if err := clipboard.WriteAll(answer.Answer); err != nil {
			showError(fmt.Sprintf("Failed to copy to clipboard: %v", err))
		} else {
			showSuccess("Answer copied to clipboard!")
		}
	}
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("chat needs an interactive terminal; use 'cloudymate ask' instead")
	}

	ctx := cmd.Context()
	app, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	session := rag.NewSession()
	logger.Debug("Started chat session %s", session.ID)
	showInfo("Ask anything about your AWS documents. Type 'exit' to quit.\n")

	for {
		var query string
		prompt := &survey.Input{Message: "You:"}
		if err := survey.AskOne(prompt, &query); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			return err
		}

		query = strings.TrimSpace(query)
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		answer, err := app.Pipeline.Ask(ctx, rag.AskRequest{Query: query, Session: session})
		if err != nil {
			showError(askError(err).Error())
			continue
		}
		printAnswer(answer)
	}
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	if !resetYes {
		confirm := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("Delete every chunk in %s?", app.Config.Store.Dir),
			Default: false,
		}
		if err := survey.AskOne(prompt, &confirm); err != nil {
			return err
		}
		if !confirm {
			showInfo("Cancelled.")
			return nil
		}
	}

	if err := app.Pipeline.Reset(ctx); err != nil {
		return err
	}
	showSuccess("Vector store cleared")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	n, err := app.Pipeline.Store().Count(ctx)
	if err != nil {
		return err
	}

	cfg := app.Config
	label := color.New(color.FgCyan, color.Bold)
	row := func(k string, v any) {
		label.Printf("%-18s", k)
		fmt.Println(v)
	}
	row("Provider:", cfg.Provider)
	row("Embeddings:", fmt.Sprintf("%s (%s, %d dims)", cfg.EmbeddingProvider(), embeddingModel(cfg), cfg.Embedding.Dimensions))
	row("Store:", cfg.Store.Dir)
	row("Chunks:", n)
	row("Chunking:", fmt.Sprintf("%d/%d", cfg.Chunking.Size, cfg.Chunking.Overlap))
	row("Top k:", cfg.Retrieval.TopK)
	row("Fail open:", cfg.Validation.FailOpen)
	return nil
}

func askError(err error) error {
	var rej *rag.RejectionError
	if errors.As(err, &rej) {
		return errors.New(rej.Reason)
	}
	return err
}
