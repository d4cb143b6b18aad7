// Package app wires configuration into the engine services shared by the
// api and worker binaries.
package app

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"classattend/internal/analytics"
	"classattend/internal/checkin"
	"classattend/internal/clock"
	"classattend/internal/config"
	"classattend/internal/faceclient"
	"classattend/internal/ledger"
	"classattend/internal/queue"
	"classattend/internal/request"
	"classattend/internal/session"
	"classattend/internal/store"
)

const queueKey = "attendance:checkins"

// ConfigureLogging sets the global zerolog level and writer. Development
// output is human readable; production emits JSON lines.
func ConfigureLogging(cfg config.App, service string) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if cfg.Production() {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = logger.With().Timestamp().Str("service", service).Logger()
}

// Services holds the constructed engine.
type Services struct {
	Clock     clock.Clock
	Store     store.Store
	Redis     *store.Redis // nil when no component needs redis
	Sessions  *session.Manager
	Ledger    *ledger.Ledger
	Requests  *request.Workflow
	Analytics *analytics.Service
	Checkins  *checkin.Service
	Queue     queue.Queue
	Results   checkin.Results
	Face      *faceclient.Client
}

// New opens the configured backends and builds the services over them.
func New(ctx context.Context, cfg config.App) (*Services, error) {
	s := &Services{Clock: clock.Real()}

	switch cfg.StoreBackend {
	case "memory":
		s.Store = store.NewMemory()
	case "sqlite":
		st, err := store.OpenSQL(ctx, store.DialectSQLite, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.Store = st
	default:
		st, err := store.OpenSQL(ctx, store.DialectPostgres, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.Store = st
	}
	log.Info().Str("backend", cfg.StoreBackend).Msg("store ready")

	if cfg.QueueBackend == "redis" || cfg.CodeRegistry == "redis" {
		s.Redis = store.NewRedis(cfg.RedisAddr)
		if !s.Redis.Healthy(ctx) {
			log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet")
		}
	}

	var codes session.CodeRegistry
	switch cfg.CodeRegistry {
	case "redis":
		codes = store.NewRedisCodes(s.Redis.Client)
	case "memory":
		codes = store.NewMemoryCodes(s.Clock)
	}

	if cfg.QueueBackend == "redis" {
		s.Queue = queue.NewRedisQueue(s.Redis.Client, queueKey)
		s.Results = checkin.NewRedisResults(s.Redis.Client)
	} else {
		s.Queue = queue.NewInMemory(64)
		s.Results = checkin.NewMemoryResults()
	}

	s.Sessions = session.NewManager(s.Store, s.Clock, codes)
	s.Ledger = ledger.New(s.Store, s.Clock)
	s.Requests = request.NewWorkflow(s.Store, s.Ledger, s.Clock).WithAttempts(s.Results)
	s.Analytics = analytics.NewService(s.Store, s.Clock, cfg.Timezone)
	s.Checkins = checkin.NewService(s.Sessions, s.Ledger, s.Clock, cfg.FaceThreshold)
	s.Face = faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	return s, nil
}

// Worker returns a check-in worker consuming the service queue.
func (s *Services) Worker() *checkin.Worker {
	return &checkin.Worker{
		Queue:        s.Queue,
		Service:      s.Checkins,
		Face:         s.Face,
		Results:      s.Results,
		Timeout:      30 * time.Second,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Close releases every backend connection.
func (s *Services) Close() error {
	return errors.Join(s.Store.Close(), s.Redis.Close())
}
