// Command voiz loads or creates the local identity and, with --self-test,
// runs both handshake roles in-process over a loopback modem pair (spec.md
// §6 "CLI surface"). No acoustic modem backend is wired in and the voice
// relay is not run: without --self-test the command exits with status 1,
// and --initiate and the modem tuning flags are parsed but not used.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmdx/voiz-go/handshake"
	"github.com/jmdx/voiz-go/identity"
	"github.com/jmdx/voiz-go/modem"
	"github.com/jmdx/voiz-go/overlay"
	"github.com/jmdx/voiz-go/transport"
	"github.com/spf13/pflag"
)

// Version is set at build time via ldflags.
var Version = "dev"

type config struct {
	initiate    bool
	backoff     bool
	verbose     bool
	selfTest    bool
	identPath   string
	logPath     string
	modemDevice string

	carrierHz       float64
	sidebandHz      float64
	transitionHz    float64
	samplesPerSym   int
	resamplerInterp int
}

func parseFlags(args []string) *config {
	fs := pflag.NewFlagSet("voiz", pflag.ContinueOnError)
	c := &config{}
	fs.BoolVar(&c.initiate, "initiate", false, "take the initiator role in the handshake")
	fs.BoolVar(&c.backoff, "backoff", false, "use the triplicated-send collision-avoidance overlay variant")
	fs.BoolVar(&c.verbose, "verbose", false, "enable debug-level logging to stdout")
	fs.BoolVar(&c.selfTest, "self-test", false, "run both handshake roles in-process over a loopback modem, then exit")
	fs.StringVar(&c.identPath, "identity", "", "path to the identity-store file (default ~/.voiz_cache)")
	fs.StringVar(&c.logPath, "log-file", "voiz-debug.log", "path to the JSON debug log")
	fs.StringVar(&c.modemDevice, "modem-device", "", "path to the acoustic modem device")
	fs.Float64Var(&c.carrierHz, "carrier-hz", 1800, "GFSK carrier frequency")
	fs.Float64Var(&c.sidebandHz, "sideband-hz", 200, "GFSK sideband frequency")
	fs.Float64Var(&c.transitionHz, "transition-hz", 100, "GFSK transition bandwidth")
	fs.IntVar(&c.samplesPerSym, "samples-per-symbol", 8, "modem samples per symbol")
	fs.IntVar(&c.resamplerInterp, "resampler-interpolation", 1, "resampler interpolation factor")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "voiz: %v\n", err)
		os.Exit(2)
	}
	return c
}

func main() {
	cfg := parseFlags(os.Args[1:])
	logger, logFile := setupLogging(cfg)
	defer func() { _ = logFile.Close() }()

	fmt.Printf("=== VoiZ %s ===\n", Version)

	store := identity.NewStore(cfg.identPath)
	zid, err := store.LoadOrCreate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiz: identity store: %v\n", err)
		os.Exit(1)
	}
	logger.Info("loaded identity", "zid", zid.String())

	if cfg.selfTest {
		runSelfTest(cfg, logger)
		return
	}

	fmt.Fprintln(os.Stderr, "voiz: no modem backend is wired in this build; run with --self-test to exercise the protocol in-process")
	os.Exit(1)
}

// runSelfTest drives both handshake roles in-process over a loopback
// modem pair, without any real hardware. It stops once both handshakes
// complete; no voice frames are exchanged.
func runSelfTest(cfg *config, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	a, b := modem.NewLoopbackPair(32)
	oa := overlay.New(transport.New(a), logger, cfg.backoff)
	ob := overlay.New(transport.New(b), logger, cfg.backoff)

	var initiatorZID, responderZID identity.ZID
	copy(initiatorZID[:], []byte("self-test-i0"))
	copy(responderZID[:], []byte("self-test-r0"))

	resultCh := make(chan error, 2)
	go func() {
		_, err := handshake.RunInitiator(oa, initiatorZID, logger)
		resultCh <- err
	}()
	go func() {
		_, err := handshake.RunResponder(ob, responderZID, logger)
		resultCh <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-resultCh:
			if err != nil {
				fmt.Fprintf(os.Stderr, "voiz: self-test handshake failed: %v\n", err)
				os.Exit(1)
			}
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "voiz: self-test interrupted")
			os.Exit(1)
		}
	}

	fmt.Println("self-test: handshake completed on both sides")
}

func setupLogging(cfg *config) (*slog.Logger, *os.File) {
	logFile, err := os.OpenFile(cfg.logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiz: failed to create log file: %v\n", err)
		os.Exit(1)
	}
	stdoutLevel := slog.LevelInfo
	if cfg.verbose {
		stdoutLevel = slog.LevelDebug
	}
	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})
	stdoutHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: stdoutLevel})
	logger := slog.New(&multiHandler{handlers: []slog.Handler{fileHandler, stdoutHandler}})
	return logger, logFile
}

// multiHandler fans out slog records to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}
