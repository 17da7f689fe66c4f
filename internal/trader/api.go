package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// APIServer provides an HTTP interface for inspecting the running bot.
type APIServer struct {
	server      *http.Server
	engine      *Engine
	coordinator *Coordinator
	logger      *zap.Logger
	startTime   time.Time
}

// NewAPIServer creates a new APIServer listening on the given port.
func NewAPIServer(port int, engine *Engine, coordinator *Coordinator, logger *zap.Logger) *APIServer {
	mux := http.NewServeMux()
	s := &APIServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		engine:      engine,
		coordinator: coordinator,
		logger:      logger.Named("api-server"),
		startTime:   time.Now(),
	}
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/positions", s.positionsHandler)
	mux.HandleFunc("/trades", s.tradesHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	symbol := s.engine.cfg.Trading.Symbol
	stats := s.coordinator.Journal().Stats()

	status := struct {
		Symbol    string  `json:"symbol"`
		Strategy  string  `json:"strategy"`
		State     string  `json:"state"`
		DryRun    bool    `json:"dry_run"`
		StartTime string  `json:"start_time"`
		Uptime    string  `json:"uptime"`
		Trades    int     `json:"trades"`
		TotalPnl  float64 `json:"total_pnl"`
		WinRate   float64 `json:"win_rate"`
	}{
		Symbol:    symbol,
		Strategy:  s.engine.strategy.Name(),
		State:     s.coordinator.State(symbol),
		DryRun:    s.engine.cfg.Trading.DryRun,
		StartTime: s.startTime.Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).String(),
		Trades:    stats.TotalTrades,
		TotalPnl:  stats.TotalPnl,
		WinRate:   stats.WinRate,
	}

	s.writeJSON(w, status)
}

func (s *APIServer) positionsHandler(w http.ResponseWriter, r *http.Request) {
	type positionView struct {
		Symbol       string  `json:"symbol"`
		Side         string  `json:"side"`
		Size         string  `json:"size"`
		EntryPrice   string  `json:"entry_price"`
		EntryTime    string  `json:"entry_time"`
		HoldingHours float64 `json:"holding_hours"`
	}

	store := s.coordinator.Store()
	views := make([]positionView, 0, store.Len())
	for _, symbol := range store.Symbols() {
		pos, ok := store.Get(symbol)
		if !ok {
			continue
		}
		views = append(views, positionView{
			Symbol:       pos.Symbol,
			Side:         string(pos.Side),
			Size:         pos.Size.String(),
			EntryPrice:   pos.EntryPrice.String(),
			EntryTime:    pos.EntryTime.Format(time.RFC3339),
			HoldingHours: pos.HoldingHours(time.Now()),
		})
	}

	s.writeJSON(w, views)
}

func (s *APIServer) tradesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.coordinator.Journal().Records())
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
