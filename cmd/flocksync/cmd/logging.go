package cmd

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brianly1003/flocksync/internal/config"
	"github.com/lmittmann/tint"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func setupLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(zerologLevel(cfg.Logging.Level))

	if cfg.Logging.Format == "console" || verbose {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func zerologLevel(name string) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// slogLevel maps a config level onto slog, which has no trace level.
func slogLevel(name string) slog.Level {
	switch zerologLevel(name) {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return slog.LevelDebug
	case zerolog.WarnLevel:
		return slog.LevelWarn
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newRequestLogger builds the HTTP request logger.
func newRequestLogger(w io.Writer, cfg *config.Config, level *slog.LevelVar) *slog.Logger {
	level.Set(slogLevel(cfg.Logging.Level))
	if cfg.Logging.Format == "json" && !verbose {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// watchLogLevel applies log level changes from the config file while the
// process runs. Other settings need a restart.
func watchLogLevel(loader *config.Loader, level *slog.LevelVar) {
	watching := loader.Watch(func(cfg *config.Config, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("config change ignored")
			return
		}
		zerolog.SetGlobalLevel(zerologLevel(cfg.Logging.Level))
		if level != nil {
			level.Set(slogLevel(cfg.Logging.Level))
		}
		log.Info().Str("level", cfg.Logging.Level).Msg("log level reloaded")
	})
	if watching {
		log.Debug().Str("file", loader.File()).Msg("watching config file")
	}
}
