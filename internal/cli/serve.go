package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sfcpath/internal/dispatch"
	"github.com/roach88/sfcpath/internal/metrics"
)

// maxRequestBytes bounds one request line on stdin.
const maxRequestBytes = 1 << 20

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Catalog     string // seeded before the first request when set
	MetricsAddr string // overrides the configured metrics address

	// IDGenerator allows overriding request ids (for testing).
	IDGenerator dispatch.IDGenerator
}

// serveEvent is one line written by serve.
type serveEvent struct {
	Event string    `json:"event"` // accepted | rejected | result
	ID    string    `json:"id,omitempty"`
	Unit  *unitView `json:"unit,omitempty"`
	Error *CLIError `json:"error,omitempty"`
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept create and delete requests as JSON lines",
		Long: `Read one JSON request per line from stdin and write one JSON event per
line to stdout. Requests run concurrently, bounded by the configured
worker count.

Requests:
  {"op":"create","chain":{"name":"C1","steps":[{"type":"firewall"}]}}
  {"op":"delete","chain_name":"C1"}

Events:
  {"event":"accepted","id":"..."}
  {"event":"rejected","error":{...}}
  {"event":"result","id":"...","unit":{...}}

Serve stops at end of input after finishing queued requests, or on
SIGINT/SIGTERM after finishing running ones.

Example:
  sfcpath serve --db ./sfc.db --catalog ./catalog --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "catalog directory to seed before serving")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "listen address for /metrics (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, ctx, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	if opts.Catalog != "" {
		if _, _, err := a.seed(ctx, opts.Catalog); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	addr := a.cfg.MetricsAddr
	if opts.MetricsAddr != "" {
		addr = opts.MetricsAddr
	}
	if addr != "" {
		stop, err := startMetricsServer(addr, a.logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer stop()
	}

	var dopts []dispatch.Option
	if opts.IDGenerator != nil {
		dopts = append(dopts, dispatch.WithIDGenerator(opts.IDGenerator))
	}
	d := a.dispatcher(dopts...)
	out := &eventWriter{enc: json.NewEncoder(cmd.OutOrStdout())}

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	written := make(chan struct{})
	go func() {
		defer close(written)
		for r := range d.Results() {
			v := newUnitView(r)
			out.write(serveEvent{Event: "result", ID: r.ID, Unit: &v})
		}
	}()

	a.logger.Info("serving requests", "workers", a.cfg.Workers)
	readErr := serveRequests(ctx, d, cmd.InOrStdin(), out)
	d.Close()

	err = <-runErr
	<-written

	if readErr != nil {
		return WrapExitError(ExitFailure, "failed to read requests", readErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "dispatcher error", err)
	}
	a.logger.Info("serve stopped")
	return nil
}

// serveRequests submits each request line until input ends or ctx is done.
func serveRequests(ctx context.Context, d *dispatch.Dispatcher, r io.Reader, out *eventWriter) error {
	lines, scanErr := scanLines(ctx, r)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return scanErr()
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			var req dispatch.Request
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				out.write(serveEvent{Event: "rejected", Error: &CLIError{
					Code:    CodeCommand,
					Message: fmt.Sprintf("malformed request: %v", err),
				}})
				continue
			}
			id, err := d.Submit(req)
			if err != nil {
				out.write(serveEvent{Event: "rejected", ID: req.ID, Error: &CLIError{
					Code:    CodeCommand,
					Message: err.Error(),
				}})
				continue
			}
			out.write(serveEvent{Event: "accepted", ID: id})
		}
	}
}

// scanLines reads r line by line on its own goroutine. The returned error
// func may only be called after the channel is closed.
func scanLines(ctx context.Context, r io.Reader) (<-chan string, func() error) {
	lines := make(chan string)
	var scanErr error
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = sc.Err()
	}()
	return lines, func() error { return scanErr }
}

// eventWriter serializes events from the reader and result goroutines.
type eventWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *eventWriter) write(ev serveEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(ev)
}

// startMetricsServer serves /metrics on addr. The returned func shuts it down.
func startMetricsServer(addr string, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics server listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}, nil
}
