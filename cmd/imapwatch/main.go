package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/imapwatch/config"
	"github.com/example/imapwatch/filter"
	"github.com/example/imapwatch/mlog"
	"github.com/example/imapwatch/session"

	flag "github.com/spf13/pflag"
)

type flags struct {
	cfgPath      string
	hasFlags     []string
	lacksFlags   []string
	subjectRegex string
	senderRegex  string
	verbose      bool
}

func mustParseFlags() *flags {
	var result flags

	flag.StringVar(&result.cfgPath, "cfg-file", "/etc/imapwatch/config.conf",
		"Path to the imapwatch config file")
	flag.StringArrayVar(&result.hasFlags, "has-flag", nil,
		"only deliver messages carrying this IMAP flag (repeatable)")
	flag.StringArrayVar(&result.lacksFlags, "lacks-flag", nil,
		"only deliver messages missing this IMAP flag (repeatable)")
	flag.StringVar(&result.subjectRegex, "subject-regex", "",
		"only deliver messages whose subject matches this regex")
	flag.StringVar(&result.senderRegex, "sender-regex", "",
		"only deliver messages whose From address matches this regex")
	flag.BoolVarP(&result.verbose, "verbose", "v", false,
		"log wire traffic at trace level (the LOGIN line is still omitted; fetched message bodies are logged)")

	flag.Parse()
	return &result
}

func configureLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = mlog.LevelTrace
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: mlog.ReplaceLevel,
	})
	return slog.New(h)
}

func loadConfig(path string) (config.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg, err := config.Parse(f)
	if err != nil {
		return config.Config{}, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func logDelivery(logger *slog.Logger) session.TargetFunc {
	return func(m session.DeliveredMessage) {
		logger.Info("message delivered",
			"seqnum", m.Seqnum,
			"subject", m.Subject,
			"flags", m.Flags,
			"parts", len(m.Body.Multipart)+boolToInt(m.Body.Onepart != nil),
		)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func installSigHandler(logger *slog.Logger, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()
}

func main() {
	flags := mustParseFlags()
	logger := configureLogger(flags.verbose)

	cfg, err := loadConfig(flags.cfgPath)
	if err != nil {
		logger.Error("loading config failed", "error", err)
		os.Exit(1)
	}

	f, err := filter.New(flags.hasFlags, flags.lacksFlags, flags.subjectRegex, flags.senderRegex)
	if err != nil {
		logger.Error("building filter failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := session.Start(ctx, cfg, session.WithLogger(logger))
	if err != nil {
		logger.Error("starting session failed", "error", err)
		os.Exit(1)
	}

	installSigHandler(logger, cancel)

	if _, err := s.Subscribe(session.Subscriber{Target: logDelivery(logger), Filter: f}); err != nil {
		logger.Error("subscribing failed", "error", err)
		os.Exit(1)
	}

	logger.Info("watching mailbox", "server", cfg.Server, "mailbox", cfg.Mailbox)

	select {
	case <-s.Done():
		logger.Info("session ended")
	case <-ctx.Done():
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := s.Close(closeCtx); err != nil {
			logger.Error("closing session failed", "error", err)
		}
	}
}
