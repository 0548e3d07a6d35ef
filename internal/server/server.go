package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"options-signal-engine/internal/interfaces"
	"options-signal-engine/internal/logger"
	"options-signal-engine/internal/store"
	"options-signal-engine/internal/types"
)

// Server exposes the signal engine over HTTP. All reads are safely
// pollable: GET /signals computes a fresh decision, and the dedup window
// keeps repeated polls from stacking orders in AUTO mode.
type Server struct {
	cfg      *store.Config
	pipeline interfaces.Pipeline
	journal  interfaces.Journal
	gate     interfaces.Gate
	notifier interfaces.Notifier

	engine *gin.Engine
	http   *http.Server
}

func New(cfg *store.Config, pipeline interfaces.Pipeline, journal interfaces.Journal, gate interfaces.Gate, notifier interfaces.Notifier) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Server.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	engine.Use(cors.New(corsCfg))

	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		journal:  journal,
		gate:     gate,
		notifier: notifier,
		engine:   engine,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/signals", s.handleSignals)
	s.engine.GET("/signals/history", s.handleHistory)
	s.engine.GET("/performance", s.handlePerformance)
	s.engine.POST("/execute", s.handleExecute)
	s.engine.POST("/exit", s.handleExit)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info(context.Background(), "HTTP server listening", "port", s.cfg.Server.Port, "mode", s.cfg.Mode)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleSignals(c *gin.Context) {
	indexID := strings.ToUpper(c.DefaultQuery("index", "NIFTY"))
	if _, ok := s.cfg.Indices[indexID]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"signal":    "ERROR",
			"reason":    fmt.Sprintf("unknown index %q", indexID),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	profile := types.RiskProfile(strings.ToLower(c.DefaultQuery("risk_profile", string(types.RiskModerate))))
	switch profile {
	case types.RiskAggressive, types.RiskModerate, types.RiskConservative:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"signal":    "ERROR",
			"reason":    fmt.Sprintf("unknown risk profile %q", profile),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	res, err := s.pipeline.Run(c.Request.Context(), indexID, profile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"signal":    "ERROR",
			"reason":    err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleHistory(c *gin.Context) {
	filter := types.JournalFilter{IndexID: strings.ToUpper(c.Query("index"))}
	entries, err := s.journal.History(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if limStr := c.Query("limit"); limStr != "" {
		if lim, err := strconv.Atoi(limStr); err == nil && lim >= 0 && lim < len(entries) {
			entries = entries[:lim]
		}
	}
	if entries == nil {
		entries = []types.TradeLogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"signals": entries})
}

func (s *Server) handlePerformance(c *gin.Context) {
	report, err := s.journal.Metrics(c.Request.Context(), types.JournalFilter{IndexID: strings.ToUpper(c.Query("index"))})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_trades":  report.TotalTrades,
		"open_trades":   report.OpenTrades,
		"wins":          report.Wins,
		"losses":        report.Losses,
		"win_rate":      report.WinRate,
		"avg_profit":    report.AvgPnL,
		"total_pnl":     report.TotalPnL,
		"max_win":       report.MaxWin,
		"max_loss":      report.MaxLoss,
		"profit_factor": report.ProfitFactor,
		"call_trades":   report.CallTrades,
		"put_trades":    report.PutTrades,
		"success":       true,
	})
}

type executeRequest struct {
	Index    string  `json:"index" binding:"required"`
	Signal   string  `json:"signal" binding:"required"`
	Entry    float64 `json:"entry" binding:"required"`
	StopLoss float64 `json:"stop_loss"`
	Target   float64 `json:"target"`
	Strike   float64 `json:"strike"`
	Lots     int     `json:"qty"`
}

// handleExecute records a trade the operator chose to take. It runs through
// the same gate as auto execution, in MANUAL mode.
func (s *Server) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	indexID := strings.ToUpper(req.Index)
	if _, ok := s.cfg.Indices[indexID]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown index %q", indexID)})
		return
	}
	direction := parseSignal(req.Signal)
	if direction == types.Wait {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("signal %q is not executable", req.Signal)})
		return
	}
	lots := req.Lots
	if lots < 1 {
		lots = 1
	}

	d := &types.FusedDecision{
		IndexID:    indexID,
		Action:     types.ActionSuggest,
		Direction:  direction,
		Confidence: 1,
		Lots:       lots,
		OrderType:  "MARKET",
		Entry:      &req.Entry,
		DecidedAt:  time.Now(),
	}
	if direction == types.BuyCall {
		d.OptionType = types.OptionCall
	} else {
		d.OptionType = types.OptionPut
	}
	if req.StopLoss > 0 {
		d.StopLoss = &req.StopLoss
	}
	if req.Target > 0 {
		d.Target = &req.Target
	}
	if req.Strike > 0 {
		d.Strike = &req.Strike
	}

	result := s.gate.Submit(c.Request.Context(), d, types.ModeManual)
	if !result.Submitted {
		c.JSON(http.StatusConflict, gin.H{"success": false, "reason": result.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"order_id": result.OrderID,
		"trade_id": result.TradeID,
	})
}

type exitRequest struct {
	TradeID string  `json:"trade_id"`
	Index   string  `json:"index"`
	Exit    float64 `json:"exit" binding:"required"`
}

// handleExit closes an open trade. With no trade_id it resolves the most
// recent open trade for the index.
func (s *Server) handleExit(c *gin.Context) {
	var req exitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	tradeID := req.TradeID
	if tradeID == "" {
		if req.Index == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "trade_id or index required"})
			return
		}
		open, err := s.journal.OpenTrade(ctx, strings.ToUpper(req.Index))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if open == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no open trade for %s", strings.ToUpper(req.Index))})
			return
		}
		tradeID = open.TradeID
	}

	entry, err := s.journal.Close(ctx, tradeID, req.Exit, time.Now())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, "trade_closed", entry)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "trade": entry})
}

func parseSignal(signal string) types.Direction {
	switch strings.ToUpper(strings.TrimSpace(signal)) {
	case "BUY CALL", "BUY_CALL", "CALL", "CE":
		return types.BuyCall
	case "BUY PUT", "BUY_PUT", "PUT", "PE":
		return types.BuyPut
	default:
		return types.Wait
	}
}
