package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"nft_messenger/internal/model"
	"nft_messenger/internal/service/auth"
	"nft_messenger/internal/utils/log"
)

type (
	KeyDirectory interface {
		Publish(ctx context.Context, address, publicKey string) error
		Lookup(ctx context.Context, address string) (string, error)
	}

	ConversationIndex interface {
		RecordBatch(ctx context.Context, tokenIDs []string, sender, recipient string) error
		Lookup(ctx context.Context, tokenID string) (model.ConversationIndexEntry, error)
	}

	Encryptor interface {
		Encrypt(ctx context.Context, message string, recipients []string) (model.EncryptResult, error)
	}

	TokenLister interface {
		HeldTokens(ctx context.Context, owner, collection string) ([]string, error)
	}

	Options struct {
		ContractAddress *string
		Timeout         time.Duration
	}

	HttpServer struct {
		directory KeyDirectory
		index     ConversationIndex
		crypto    Encryptor
		market    TokenLister
		auth      *auth.Service
		hub       *Hub
		opts      Options

		registry *prometheus.Registry
		metrics  *metrics
	}
)

func NewHttpServer(directory KeyDirectory, index ConversationIndex, crypto Encryptor, market TokenLister, authSvc *auth.Service, opts Options) *HttpServer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := newMetrics(registry)

	hub := NewHub()
	hub.gauge = m.subscribers

	return &HttpServer{
		directory: directory,
		index:     index,
		crypto:    crypto,
		market:    market,
		auth:      authSvc,
		hub:       hub,
		opts:      opts,
		registry:  registry,
		metrics:   m,
	}
}

func (s *HttpServer) Hub() *Hub {
	return s.hub
}

func (s *HttpServer) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.metrics.instrument)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/challenge/{address}", s.GetChallenge()).Methods(http.MethodGet)
	api.HandleFunc("/pubkey", s.PublishKey()).Methods(http.MethodPost)
	api.HandleFunc("/pubkey/{address}", s.GetPublicKey()).Methods(http.MethodGet)
	api.HandleFunc("/config", s.GetConfig()).Methods(http.MethodGet)
	api.HandleFunc("/held/{addr}", s.GetHeldTokens()).Methods(http.MethodGet)
	api.HandleFunc("/index", s.RecordIndex()).Methods(http.MethodPost)
	api.HandleFunc("/msginfo/{id}", s.GetMessageInfo()).Methods(http.MethodGet)
	api.HandleFunc("/encrypt", s.Encrypt()).Methods(http.MethodPost)
	api.HandleFunc("/subscribe/{address}", s.HandleSubscribe()).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return cors(r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *HttpServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.Timeout,
		WriteTimeout:      s.opts.Timeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("http server shutting down")
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
