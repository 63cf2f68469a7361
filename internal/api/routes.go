package api

import (
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/pacmatch-engine/internal/betting"
	"github.com/rawblock/pacmatch-engine/internal/bus"
	"github.com/rawblock/pacmatch-engine/internal/challenge"
	"github.com/rawblock/pacmatch-engine/internal/engine"
	"github.com/rawblock/pacmatch-engine/internal/matchrunner"
	"github.com/rawblock/pacmatch-engine/internal/session"
	"github.com/rawblock/pacmatch-engine/internal/tournament"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

// APIHandler composes the core subsystems behind the HTTP/websocket
// surface. Any field may be nil — handlers degrade to 503 rather than
// panic, the same guard the teacher applies around its Bitcoin client.
type APIHandler struct {
	sessions    *session.Manager
	hub         *bus.Hub
	challenges  *challenge.Controller
	tournaments *tournament.Controller
	betting     *betting.Orchestrator
	matches     *matchrunner.Runner
}

// SetupRouter wires the public spectator surface and the protected
// control surface (tournament/challenge/bet admin actions) onto a Gin
// engine.
func SetupRouter(sessions *session.Manager, hub *bus.Hub, challenges *challenge.Controller, tournaments *tournament.Controller, bo *betting.Orchestrator, matches *matchrunner.Runner) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	h := &APIHandler{sessions: sessions, hub: hub, challenges: challenges, tournaments: tournaments, betting: bo, matches: matches}

	// 30 requests/minute per IP, burst of 10 — guards this engine's own
	// admin surface, not an edge gateway (see admin group below).
	limiter := NewRateLimiter(30, 10)

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/stream", h.handleStream)
		pub.GET("/sessions/:id/snapshot", h.handleSnapshot)
		pub.GET("/tournaments/active", h.handleTournamentCount)
		pub.GET("/challenges/active", h.handleChallengeCount)
	}

	// Protected: everything that mutates tournament/challenge/betting
	// state.
	admin := r.Group("/api/v1")
	admin.Use(AuthMiddleware(), limiter.Middleware())
	{
		admin.POST("/tournaments", h.handleCreateTournament)

		admin.POST("/challenges", h.handleCreateChallenge)
		admin.POST("/challenges/:id/connect", h.handleChallengeConnect)
		admin.POST("/challenges/:id/disconnect", h.handleChallengeDisconnect)
		admin.POST("/challenges/:id/reconnect", h.handleChallengeReconnect)

		admin.POST("/matches/:matchId/action", h.handleAgentAction)
		admin.POST("/bets", h.handleRecordBet)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "Pac-Match Arcade Engine",
		"capabilities": gin.H{
			"sessions":    h.sessions != nil,
			"tournaments": h.tournaments != nil,
			"challenges":  h.challenges != nil,
			"betting":     h.betting != nil,
		},
	})
}

// handleStream upgrades to a websocket and joins the caller into a
// spectator room: `<kind>:<sessionId>` for a match/challenge session,
// or `tournament:<id>` / `betting:<matchId>` for orchestration events.
func (h *APIHandler) handleStream(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message bus not configured"})
		return
	}
	room := c.Query("room")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room query parameter is required"})
		return
	}
	subscriberID := c.Query("subscriberId")
	if subscriberID == "" {
		subscriberID = c.ClientIP() + ":" + strconv.FormatInt(int64(len(room)), 10)
	}
	h.hub.Subscribe(c, room, subscriberID)
}

func (h *APIHandler) handleSnapshot(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session manager not configured"})
		return
	}
	id := c.Param("id")
	snap, ok := h.sessions.FullSync(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *APIHandler) handleTournamentCount(c *gin.Context) {
	if h.tournaments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tournament controller not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeTournaments": h.tournaments.ActiveTournamentCount()})
}

func (h *APIHandler) handleChallengeCount(c *gin.Context) {
	if h.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "challenge controller not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeChallenges": h.challenges.ActiveCount()})
}

// handleCreateTournament POST /tournaments {"size": 8}
func (h *APIHandler) handleCreateTournament(c *gin.Context) {
	if h.tournaments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tournament controller not configured"})
		return
	}
	var req struct {
		Size int `json:"size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Size <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {size}"})
		return
	}
	id, err := h.tournaments.CreateAutonomousTournament(c.Request.Context(), req.Size)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tournamentId": id})
}

// handleCreateChallenge POST /challenges {"variant":"classic","seed":1,"tier":3}
func (h *APIHandler) handleCreateChallenge(c *gin.Context) {
	if h.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "challenge controller not configured"})
		return
	}
	var req struct {
		Variant string `json:"variant"`
		Seed    int64  `json:"seed"`
		Tier    int    `json:"tier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {variant, seed, tier}"})
		return
	}
	id, err := h.challenges.CreateChallenge(c.Request.Context(), req.Variant, req.Seed, engine.Tier(req.Tier))
	if err != nil {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"challengeId": id})
}

func (h *APIHandler) handleChallengeConnect(c *gin.Context) {
	if h.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "challenge controller not configured"})
		return
	}
	var req struct {
		AgentAddress string `json:"agentAddress"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AgentAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {agentAddress}"})
		return
	}
	if err := h.challenges.AgentConnect(c.Param("id"), req.AgentAddress); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "connected"})
}

func (h *APIHandler) handleChallengeDisconnect(c *gin.Context) {
	if h.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "challenge controller not configured"})
		return
	}
	h.challenges.Disconnect(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

func (h *APIHandler) handleChallengeReconnect(c *gin.Context) {
	if h.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "challenge controller not configured"})
		return
	}
	if err := h.challenges.Reconnect(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reconnected"})
}

// handleAgentAction POST /matches/:matchId/action
// {"agentAddress":"0x...","direction":"up"} — the wire shape of the
// `agent_action` inbound event (spec §6), exposed over REST as well as
// whatever transport the external job runner integration uses.
func (h *APIHandler) handleAgentAction(c *gin.Context) {
	if h.matches == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "match runner not configured"})
		return
	}
	var req struct {
		AgentAddress string `json:"agentAddress"`
		Direction    string `json:"direction"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {agentAddress, direction}"})
		return
	}
	dir, ok := models.ParseDirection(req.Direction)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"}) // invalid input is dropped, not an error (spec §7)
		return
	}
	h.matches.AgentAction(c.Param("matchId"), req.AgentAddress, dir)
	c.JSON(http.StatusOK, gin.H{"status": "queued"})
}

// handleRecordBet POST /bets {"matchId":"...","side":"agentA","amountWei":"1500000000000000000"}
func (h *APIHandler) handleRecordBet(c *gin.Context) {
	if h.betting == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "betting orchestrator not configured"})
		return
	}
	var req struct {
		MatchID   string `json:"matchId"`
		Side      string `json:"side"`
		AmountWei string `json:"amountWei"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {matchId, side, amountWei}"})
		return
	}
	amount, ok := new(big.Int).SetString(req.AmountWei, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amountWei must be a base-10 integer string"})
		return
	}
	var side betting.Side
	switch req.Side {
	case "agentA":
		side = betting.SideA
	case "agentB":
		side = betting.SideB
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be agentA or agentB"})
		return
	}
	if err := h.betting.RecordBet(req.MatchID, side, amount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
