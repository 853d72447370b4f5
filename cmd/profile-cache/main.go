package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	profilecache "github.com/always-cache/profile-cache"
	"github.com/always-cache/profile-cache/cache"
	"github.com/always-cache/profile-cache/notify"
	apiclient "github.com/always-cache/profile-cache/pkg/api-client"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFlag         string
	apiFlag            string
	portFlag           int
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "Config file (YAML)")
	flag.StringVar(&apiFlag, "api", "", "Base URL of the profile API")
	flag.IntVar(&portFlag, "port", 0, "Port of the inspection endpoint")
	flag.StringVar(&dbFilenameFlag, "db", "", "Notification history DB file name (use 'memory' for in-memory db)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	config, err := getConfig(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read config")
	}
	// explicitly set flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api":
			config.API = apiFlag
		case "port":
			config.Port = portFlag
		case "db":
			config.DB = dbFilenameFlag
		case "log-file":
			config.LogFile = logFilenameFlag
		}
	})

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if config.LogFile != "" {
		if logFileOutput, err := os.OpenFile(config.LogFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	if config.API == "" {
		log.Fatal().Msg("Please specify the API URL")
	}

	// set up sqlite history provider
	dbFilename := config.DB
	if dbFilename == "memory" {
		dbFilename = cache.MemoryDB
	}
	store, err := cache.NewSQLiteCache(dbFilename)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open history db")
	}
	// log.Fatal exits without running deferred calls
	fatal := func(err error, msg string) {
		if closeErr := store.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Could not close history db")
		}
		log.Fatal().Err(err).Msg(msg)
	}

	logEmitter := notify.NewLogEmitter(&log.Logger)
	history := notify.NewHistory(notify.HistoryConfig{
		Store:  store,
		Limit:  config.HistoryLimit,
		Next:   logEmitter,
		Logger: &log.Logger,
	})

	header := make(http.Header)
	for name, value := range config.Header {
		header.Set(name, value)
	}
	client, err := apiclient.New(apiclient.Config{
		BaseURL: config.API,
		Timeout: config.Timeout,
		Header:  header,
		Logger:  &log.Logger,
	})
	if err != nil {
		fatal(err, "Could not create API client")
	}

	pc, err := profilecache.CreateCache(profilecache.Config{
		API:        client,
		Notifier:   history,
		Logger:     &log.Logger,
		OwnTTL:     config.TTL.Own,
		UserTTL:    config.TTL.User,
		VisitedTTL: config.TTL.Visited,
		ListTTL:    config.TTL.List,
		Debounce:   config.TTL.Debounce,
	})
	if err != nil {
		fatal(err, "Invalid cache config")
	}

	r := chi.NewRouter()
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))
	r.Mount("/", pc)

	log.Info().Msgf("Inspecting profile cache for %s on port %v", config.API, config.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", config.Port), r); err != nil {
		fatal(err, "Server stopped")
	}
}
