package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"DeepTrader/internal/metrics"
	"DeepTrader/internal/model"
	"DeepTrader/internal/status"
)

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
}

type profitLossResponse struct {
	RunID          string    `json:"run_id"`
	InitialCapital float64   `json:"initial_capital"`
	Values         []float64 `json:"values"`
	PnL            []float64 `json:"pnl"`
	TotalPnL       float64   `json:"total_pnl"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := s.systemStats()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		CPUPercent:    cpuPct,
		RAMPercent:    ramPct,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := status.Read(s.cfg.Training.StatusFile)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read status file")
		s.writeError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "no run has reported status yet")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	episodes, err := s.reader.RecentEpisodes(queryInt(r, "limit", 50))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query episodes")
		s.writeError(w, http.StatusInternalServerError, "failed to query episodes")
		return
	}
	if episodes == nil {
		episodes = []model.EpisodeStats{}
	}
	s.writeJSON(w, http.StatusOK, episodes)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.reader.RecentTrades(queryInt(r, "limit", 50))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query trades")
		s.writeError(w, http.StatusInternalServerError, "failed to query trades")
		return
	}
	if trades == nil {
		trades = []model.TradeEvent{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	run, err := s.reader.LatestRun()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query latest run")
		s.writeError(w, http.StatusInternalServerError, "failed to query runs")
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}

	values, err := s.reader.EpisodeValues(run.RunID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query episode values")
		s.writeError(w, http.StatusInternalServerError, "failed to query episodes")
		return
	}

	// The series starts at the initial capital so one finished episode
	// already yields a return. Episodes are not fixed time periods, so
	// the Sharpe ratio stays unannualized here.
	series := append([]float64{s.cfg.Trading.InitialCapital}, values...)
	perf, err := metrics.Evaluate(series, s.cfg.Trading.InitialCapital, 1)
	if errors.Is(err, metrics.ErrInsufficientSeries) {
		s.writeError(w, http.StatusNotFound, "no episodes recorded for the latest run")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute performance")
		s.writeError(w, http.StatusInternalServerError, "failed to compute performance")
		return
	}
	s.writeJSON(w, http.StatusOK, perf)
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	snap, err := s.reader.LatestIndicators()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query indicators")
		s.writeError(w, http.StatusInternalServerError, "failed to query indicators")
		return
	}
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "no indicator snapshots recorded")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleProfitLoss(w http.ResponseWriter, r *http.Request) {
	run, err := s.reader.LatestRun()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query latest run")
		s.writeError(w, http.StatusInternalServerError, "failed to query runs")
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}

	values, err := s.reader.EpisodeValues(run.RunID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query episode values")
		s.writeError(w, http.StatusInternalServerError, "failed to query episodes")
		return
	}

	initial := s.cfg.Trading.InitialCapital
	resp := profitLossResponse{
		RunID:          run.RunID,
		InitialCapital: initial,
		Values:         values,
		PnL:            make([]float64, len(values)),
	}
	for i, v := range values {
		resp.PnL[i] = v - initial
	}
	if len(values) > 0 {
		resp.TotalPnL = values[len(values)-1] - initial
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	if s.wallet == nil || !s.wallet.HasCredentials() {
		s.writeError(w, http.StatusServiceUnavailable, "exchange credentials not configured")
		return
	}
	balance, err := s.wallet.FetchWalletBalance(r.Context(), "")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to fetch wallet balance")
		s.writeError(w, http.StatusBadGateway, "failed to fetch wallet balance")
		return
	}
	s.writeJSON(w, http.StatusOK, balance)
}

// systemStats samples CPU over 100ms to keep the health check fast.
func (s *Server) systemStats() (float64, float64) {
	cpuPct, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read CPU usage")
		cpuPct = []float64{0}
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read memory usage")
		return cpuPct[0], 0
	}
	avg := 0.0
	if len(cpuPct) > 0 {
		avg = cpuPct[0]
	}
	return avg, memStat.UsedPercent
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, msg string) {
	s.writeJSON(w, statusCode, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
