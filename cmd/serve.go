package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/pmdash/internal/api"
	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/daemon"
	webui "github.com/joescharf/pmdash/internal/ui"
)

const (
	serveStartWait = 5 * time.Second
	serveStopWait  = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API, change stream and web UI",
	Long: `Start the HTTP server in the foreground: REST API under /api/v1, the
live change stream at /api/v1/events, uploaded files under /files and the
web dashboard at /.

Use 'pmdash serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "Port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile is the record of the background server.
func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "pmdash-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "pmdash-serve.log")
}

// serveURL is the address clients and attachment links use.
func serveURL() string {
	if u := viper.GetString("base_url"); u != "" {
		return u
	}
	return fmt.Sprintf("http://localhost:%d", viper.GetInt("port"))
}

// newVerifier checks bearer tokens. Without a secret every request acts as
// service.user_id.
func newVerifier() *auth.Verifier {
	secret := viper.GetString("auth.jwt_secret")
	var opts []auth.Option
	if secret == "" {
		opts = append(opts, auth.WithFallback(cliIdentity()))
	}
	return auth.NewVerifier(secret, viper.GetString("auth.issuer"), opts...)
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	s, err := getStore()
	if err != nil {
		return err
	}
	logger := newLogger()

	blobs, err := newBlobStore()
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}
	site, err := webui.Handler()
	if err != nil {
		return fmt.Errorf("initialize UI handler: %w", err)
	}
	llmClient := newLLMClient()
	if llmClient == nil {
		logger.Info("LLM enrichment disabled: no anthropic api key")
	}
	if viper.GetString("auth.jwt_secret") == "" {
		logger.Warn("auth.jwt_secret not set; requests act as service user", "user", viper.GetString("service.user_id"))
	}

	srv := api.NewServer(s, eventHub, blobs, llmClient, newVerifier(), logger)
	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	pf := pidFile()
	if err := pf.Claim(serveURL()); err != nil {
		_ = ln.Close()
		return err
	}
	defer func() { _ = pf.Release() }()

	// Event streams hold their connections until the request context ends,
	// so shutdown cancels the base context the requests derive from.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	httpServer := &http.Server{
		Handler:           srv.Router(site),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	httpServer.RegisterOnShutdown(cancelRequests)
	errc := make(chan error, 1)
	go func() { errc <- httpServer.Serve(ln) }()

	ui.Success("Serving pmdash at %s", serveURL())
	logger.Info("server started", "addr", ln.Addr().String(), "pid", os.Getpid())

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveStopWait)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	if dryRun {
		ui.DryRunMsg("Would start server on port %d", viper.GetInt("port"))
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	if err := os.MkdirAll(viper.GetString("state_dir"), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()

	args := []string{"serve", "--port", strconv.Itoa(viper.GetInt("port"))}
	if cfg, _ := rootCmd.PersistentFlags().GetString("config"); cfg != "" {
		args = append(args, "--config", cfg)
	}
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	pid := child.Process.Pid
	exited := make(chan error, 1)
	go func() { exited <- child.Wait() }()

	deadline := time.After(serveStartWait)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-exited:
			return fmt.Errorf("server exited during startup (%v); see %s", err, serveLogPath())
		case <-deadline:
			ui.Warning("Server (pid %d) has not reported ready; see %s", pid, serveLogPath())
			return nil
		case <-tick.C:
			if rec, err := pf.Load(); err == nil && rec.PID == pid {
				ui.Success("Server started (pid %d) at %s", pid, rec.URL)
				ui.VerboseLog("Log: %s", serveLogPath())
				return nil
			}
		}
	}
}

func serveStopRun() error {
	pf := pidFile()

	if dryRun {
		if pid, running := pf.IsRunning(); running {
			ui.DryRunMsg("Would stop server (pid %d)", pid)
			return nil
		}
	}

	res, err := pf.Stop(sigTERM(), sigKILL(), serveStopWait)
	if errors.Is(err, daemon.ErrNotRunning) {
		return fmt.Errorf("server is not running")
	}
	if err != nil {
		return err
	}
	if res.Killed {
		ui.Warning("Server (pid %d) did not stop in time and was killed", res.PID)
		return nil
	}
	ui.Success("Server stopped (pid %d)", res.PID)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	rec, err := pf.Load()
	if err != nil {
		ui.Info("Server is not running")
		return nil
	}
	if _, running := pf.IsRunning(); !running {
		ui.Info("Server is not running (stale PID file for pid %d)", rec.PID)
		return nil
	}

	ui.Success("Server is running (pid %d)", rec.PID)
	if rec.URL != "" {
		fmt.Fprintf(ui.Out, "  URL:     %s\n", rec.URL)
	}
	if !rec.Started.IsZero() {
		fmt.Fprintf(ui.Out, "  Started: %s\n", timeAgo(rec.Started))
	}
	fmt.Fprintf(ui.Out, "  Log:     %s\n", serveLogPath())
	return nil
}
