// Package web serves the hive's HTTP API, the websocket event stream
// bridged from the bus, and the prometheus metrics endpoint. It is the
// surface an external host shell observes and drives the hive through.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hivedhq/hived/internal/config"
	"github.com/hivedhq/hived/internal/eventbus"
	"github.com/hivedhq/hived/internal/hive"
	"github.com/hivedhq/hived/internal/memory"
	"github.com/hivedhq/hived/internal/metrics"
)

type Server struct {
	orch      *hive.Orchestrator
	bank      *memory.Bank
	bus       *eventbus.Bus
	nats      *eventbus.Client
	collector *metrics.Collector
	hub       *Hub
	cfg       config.WebConfig
	version   string
	startedAt time.Time
}

func NewServer(orch *hive.Orchestrator, bank *memory.Bank, bus *eventbus.Bus, collector *metrics.Collector, cfg config.WebConfig, version string) *Server {
	return &Server{
		orch:      orch,
		bank:      bank,
		bus:       bus,
		collector: collector,
		hub:       NewHub(),
		cfg:       cfg,
		version:   version,
		startedAt: time.Now(),
	}
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	s.subscribeEvents()

	mux := http.NewServeMux()
	s.registerAPI(mux)
	mux.HandleFunc("/api/ws", s.handleWebSocket)
	mux.Handle("GET /metrics", s.collector.Handler())

	handler := s.withMiddleware(mux)
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/api/") && s.cfg.Auth != "" {
			if !s.checkAuth(w, r) {
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// checkAuth validates the bearer token. Websocket clients cannot set
// headers from a browser, so /api/ws also accepts a token query param.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" && r.URL.Path == "/api/ws" {
		token = r.URL.Query().Get("token")
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Auth)) == 1 {
		return true
	}

	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return false
}

// subscribeEvents bridges every bus event into the websocket hub.
func (s *Server) subscribeEvents() {
	if s.bus == nil {
		return
	}
	client, err := eventbus.NewClient(s.bus)
	if err != nil {
		slog.Error("web server nats client failed", "error", err)
		return
	}
	s.nats = client

	_, err = client.SubscribeEvents(eventbus.TopicEventsAll, func(e eventbus.Event) {
		s.hub.Broadcast(e)
	})
	if err != nil {
		slog.Error("event subscription failed", "error", err)
	}
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
