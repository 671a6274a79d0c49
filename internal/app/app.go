// Package app assembles the matching server from its configuration and owns
// its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"matchbook/internal/config"
	"matchbook/internal/engine"
	"matchbook/internal/metrics"
	"matchbook/internal/net"
	"matchbook/internal/publish"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const metricsShutdownTimeout = 5 * time.Second

type Server struct {
	ctx    context.Context
	cancel context.CancelFunc

	engine    *engine.Engine
	gateway   *net.Server
	publisher *publish.KafkaPublisher
	metrics   *http.Server
}

// SetupLogging configures the global zerolog logger.
func SetupLogging(cfg *config.Config, out io.Writer) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	if out == nil {
		out = os.Stderr
	}
	if strings.ToLower(cfg.LogFormat) == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// Create builds every component cfg enables. Nothing runs until Run.
func Create(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	eng := engine.New(cfg.Book.Symbol, cfg.Book.QueueSize)
	s := &Server{
		engine: eng,
		gateway: net.New(net.Config{
			Address:     cfg.Server.Address,
			Port:        cfg.Server.Port,
			Workers:     cfg.Server.Workers,
			ConnTimeout: cfg.Server.ConnTimeout.Duration,
		}, eng),
	}

	if cfg.Kafka.Enabled {
		publisher, err := publish.NewKafkaPublisher(publish.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		s.publisher = publisher
		eng.AddReporter(publisher)
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		s.metrics = &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	return s, nil
}

// Ready is closed once the gateway accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.gateway.Ready()
}

func (s *Server) Gateway() *net.Server {
	return s.gateway
}

// Destroys the server context, and signals to running routines to issue a cleanup.
func (s *Server) Shutdown() {
	s.cancel()
}

// Run blocks until Shutdown, cancellation of the parent context or the
// failure of any component. A clean shutdown returns nil.
func (s *Server) Run() error {
	t, ctx := tomb.WithContext(s.ctx)

	t.Go(func() error {
		return s.engine.Run(t)
	})
	t.Go(func() error {
		return s.gateway.Run(ctx)
	})
	if s.metrics != nil {
		t.Go(func() error {
			log.Info().Str("address", s.metrics.Addr).Msg("metrics listening")
			if err := s.metrics.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		t.Go(func() error {
			<-t.Dying()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			return s.metrics.Shutdown(shutdownCtx)
		})
	}

	err := t.Wait()
	s.cancel()

	if s.publisher != nil {
		if cerr := s.publisher.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("unable to close kafka publisher")
		}
	}

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		log.Error().Err(err).Msg("server stopped")
	} else {
		log.Info().Msg("server stopped")
	}
	return err
}
