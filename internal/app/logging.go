package app

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pgduckdb/tpchbench/internal/config"
)

// SetupLogging points the global logger at stderr. Reports go to stdout, so
// diagnostics never mix with them. Without an explicit format the console
// writer is used on a terminal and JSON otherwise.
func SetupLogging(cfg config.LogConfig) {
	if cfg.Format == "" && !isatty.IsTerminal(os.Stderr.Fd()) {
		cfg.Format = "json"
	}
	setupLogging(cfg, os.Stderr)
}

func setupLogging(cfg config.LogConfig, w io.Writer) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.TimeOnly,
	}).With().Timestamp().Logger()
}
