package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/rawblock/pacmatch-engine/internal/api"
	"github.com/rawblock/pacmatch-engine/internal/betting"
	"github.com/rawblock/pacmatch-engine/internal/bus"
	"github.com/rawblock/pacmatch-engine/internal/chainledger"
	"github.com/rawblock/pacmatch-engine/internal/challenge"
	"github.com/rawblock/pacmatch-engine/internal/matchrunner"
	"github.com/rawblock/pacmatch-engine/internal/session"
	"github.com/rawblock/pacmatch-engine/internal/store"
	"github.com/rawblock/pacmatch-engine/internal/tournament"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

func main() {
	log.Println("Starting Pac-Match Arcade Engine...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values.
	// ────────────────────────────────────────────────────────────────────

	dbURL := requireEnv("DATABASE_URL")

	auditStore, err := store.Connect(dbURL)
	if err != nil {
		log.Printf("Warning: failed to connect to PostgreSQL, continuing without audit persistence. Error: %v", err)
	} else {
		defer auditStore.Close()
		if err := auditStore.InitSchema(); err != nil {
			log.Printf("Warning: schema init failed: %v", err)
		}
	}

	chainEndpoint := requireEnv("CHAIN_RPC_ENDPOINT")
	chainUser := getEnvOrDefault("CHAIN_RPC_USER", "")
	chainPass := getEnvOrDefault("CHAIN_RPC_PASS", "")

	chainClient, err := chainledger.NewClient(chainledger.Config{
		Endpoint: chainEndpoint,
		AuthUser: chainUser,
		AuthPass: chainPass,
	})
	if err != nil {
		log.Fatalf("FATAL: unable to reach chain ledger at %s: %v", chainEndpoint, err)
	}

	// Room-scoped spectator fan-out hub, shared across every subsystem.
	hub := bus.NewHub()
	defer hub.Shutdown()

	// Challenge matches drive their own session manager; tournament
	// matches drive a second one inside matchRunner. Each manager has
	// exactly one onGameOver slot (spec §4.3), so the two domains must
	// not share one.
	challengeSessions := session.New(hub)

	maxConcurrentChallenges := envInt("MAX_CONCURRENT_CHALLENGES", 10)

	bettingEnabled := getEnvOrDefault("BETTING_ENABLED", "true") == "true"
	var bettingOrch *betting.Orchestrator
	if bettingEnabled {
		bettingOrch = betting.New(hub, chainClient)
	}

	challengeController := challenge.New(challengeSessions, hub, bettingOrch, maxConcurrentChallenges)
	challengeSessions.SetOnGameOver(gameOverFanout(auditStore, challengeController.OnEngineGameOver))

	matchRunner := matchrunner.New()
	tournamentController := tournament.New(chainClient, hub, bettingOrch, matchRunner)
	matchRunner.SetCompletionHandler(tournamentController.HandleMatchCompletion)

	if auditStore != nil {
		challengeController.SetAuditSink(auditStore)
		tournamentController.SetAuditSink(auditStore)
		if bettingOrch != nil {
			bettingOrch.SetAuditSink(auditStore)
		}
	}

	r := api.SetupRouter(challengeSessions, hub, challengeController, tournamentController, bettingOrch, matchRunner)

	port := getEnvOrDefault("PORT", "8080")
	log.Printf("Engine running on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// gameOverFanout wraps a session manager's single onGameOver slot so
// the challenge controller's own lifecycle handling and the
// non-authoritative audit write both run off the same event, in order.
func gameOverFanout(auditStore *store.Store, next session.GameOverCallback) session.GameOverCallback {
	return func(sessionID, reason string, final models.Snapshot) {
		if auditStore != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := auditStore.RecordSessionEnd(ctx, sessionID, final.Score, final.Round, reason); err != nil {
				log.Printf("store: record session end for %s failed: %v", sessionID, err)
			}
			cancel()
		}
		next(sessionID, reason, final)
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set.", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("Warning: invalid integer for %s=%q, using default %d", key, val, fallback)
		return fallback
	}
	return n
}
