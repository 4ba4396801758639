// Package api provides the HTTP control surface of a running simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/mini-economy/internal/agents"
	"github.com/talgya/mini-economy/internal/banking"
	"github.com/talgya/mini-economy/internal/economy"
	"github.com/talgya/mini-economy/internal/engine"
	"github.com/talgya/mini-economy/internal/persistence"
)

// Server serves the simulation state over HTTP.
type Server struct {
	Eng      *engine.Engine
	Pop      *agents.Population
	Bank     *banking.Bank
	DB       *persistence.DB    // optional; enables /api/v1/fills
	Gatherer prometheus.Gatherer // optional; enables /metrics
	Currency economy.Currency   // default currency of provisioned agents
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	Logger   *slog.Logger

	// Intervention rate limit; zero values use 60 per minute.
	RateLimit  int
	RateWindow time.Duration

	srv *http.Server
}

// Handler builds the router.
func (s *Server) Handler() (http.Handler, error) {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	validator, err := newInterventionValidator()
	if err != nil {
		return nil, err
	}
	if s.RateLimit <= 0 {
		s.RateLimit = 60
	}
	if s.RateWindow <= 0 {
		s.RateWindow = time.Minute
	}
	limiter := NewRateLimiter(s.RateLimit, s.RateWindow)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.Logger.With("component", "api")))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (GET, read-only).
		r.Get("/status", s.handleStatus)
		r.Get("/markets", s.handleMarkets)
		r.Get("/markets/{currency}/{commodity}", s.handleBook)
		r.Get("/agents", s.handleAgents)
		r.Get("/fills", s.handleFills)
		r.Get("/speed", s.handleSpeed)

		// Admin endpoints (POST, require bearer token).
		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Post("/speed", s.handleSpeed)
			r.With(limiter.Middleware).Post("/intervention", s.handleIntervention(validator))
		})
	})
	return r, nil
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() error {
	h, err := s.Handler()
	if err != nil {
		return err
	}
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.Logger.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware allows read-only access from any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly rejects requests without the admin bearer token.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no ECONSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status map[string]any
	s.Eng.View(func(sim *engine.Simulation) {
		status = map[string]any{
			"run_id":           sim.RunID.String(),
			"instant":          sim.Now(),
			"sim_time":         sim.Now().String(),
			"start":            sim.Clock.Start().String(),
			"subscriptions":    sim.Calendar.Len(),
			"external_pending": sim.External.Len(),
			"books":            len(sim.Markets.Books()),
			"stats":            sim.Stats,
			"last_tick":        sim.LastReport,
			"dispatcher_state": sim.Dispatcher.State().String(),
		}
		if s.Pop != nil {
			status["agents"] = s.Pop.Living()
		}
	})
	status["speed"] = s.Eng.Speed()
	status["running"] = s.Eng.Running()
	writeJSON(w, status)
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	var quotes []engine.Quote
	s.Eng.View(func(sim *engine.Simulation) { quotes = sim.Quotes() })
	writeJSON(w, quotes)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	cur := economy.Currency(strings.ToUpper(chi.URLParam(r, "currency")))
	c, err := economy.ParseCommodity(chi.URLParam(r, "commodity"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var (
		found  bool
		orders []economy.OrderView
		price  float64
		amount float64
	)
	s.Eng.View(func(sim *engine.Simulation) {
		b, ok := sim.Markets.Lookup(economy.BookKey{Currency: cur, Commodity: c})
		if !ok {
			return
		}
		found = true
		orders = b.Orders()
		price = b.MarginalPrice()
		amount = b.AmountSum()
	})
	if !found {
		http.Error(w, "book not found", http.StatusNotFound)
		return
	}

	resp := map[string]any{
		"currency":   cur,
		"commodity":  c.Key(),
		"amount_sum": amount,
		"orders":     orders,
	}
	if len(orders) > 0 {
		resp["marginal_price"] = price
	}
	writeJSON(w, resp)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if s.Pop == nil {
		writeJSON(w, []any{})
		return
	}

	type agentEntry struct {
		*agents.Agent
		Money float64 `json:"money"`
		Stock float64 `json:"stock"`
	}
	role := r.URL.Query().Get("role")

	var out []agentEntry
	s.Eng.View(func(*engine.Simulation) {
		for _, a := range s.Pop.All() {
			if !a.Alive || (role != "" && a.Role.String() != role) {
				continue
			}
			e := agentEntry{Agent: a}
			if s.Bank != nil {
				e.Money = s.Bank.Money(a.ID, a.Currency)
				e.Stock = s.Bank.Balance(a.ID, economy.Good(a.Good))
			}
			out = append(out, e)
		}
	})
	if out == nil {
		out = []agentEntry{}
	}
	writeJSON(w, out)
}

func (s *Server) handleFills(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "trade journal not configured", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			http.Error(w, "limit must be 1-1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var runID string
	s.Eng.View(func(sim *engine.Simulation) { runID = sim.RunID.String() })
	rows, err := s.DB.RecentFills(runID, limit)
	if err != nil {
		s.Logger.Error("fills query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []persistence.FillRow{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		s.Logger.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}
