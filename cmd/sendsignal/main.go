// Command sendsignal delivers a signed signal payload to a consumer
// endpoint, exercising the full outbound path: signing, retries with
// backoff, circuit breaking, and operator alerting on exhaustion.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"signal-relay/internal/alert"
	"signal-relay/internal/circuitbreaker"
	"signal-relay/internal/common/logging"
	"signal-relay/internal/config"
	"signal-relay/internal/delivery"
	"signal-relay/internal/retry"
)

func main() {
	_ = godotenv.Load()

	endpointFlag := flag.String("endpoint", "", "consumer endpoint URL (overrides DELIVERY_ENDPOINT)")
	bodyFlag := flag.String("body", "", "signal payload; reads stdin when empty")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	endpoint := *endpointFlag
	if endpoint == "" {
		endpoint = cfg.DeliveryEndpoint
	}
	if endpoint == "" {
		log.Fatal("No endpoint: set -endpoint or DELIVERY_ENDPOINT")
	}

	body := []byte(*bodyFlag)
	if len(body) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Failed to read payload from stdin: %v", err)
		}
		body = data
	}

	breaker := circuitbreaker.NewGoBreaker("delivery", circuitbreaker.DeliveryConfig, logger)

	client, err := delivery.NewClient(delivery.ClientConfig{
		ProducerID: cfg.ProducerID,
		Secret:     []byte(cfg.SigningSecret),
		Policy:     cfg.RetryPolicy(),
		Timeout:    cfg.DeliveryTimeout,
		Breaker:    breaker,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("Failed to create delivery client: %v", err)
	}

	dispatcher := alert.NewDispatcher(
		alert.NewBotChannel(cfg.AlertBotToken),
		cfg.AlertChatID,
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	resp, err := client.Deliver(ctx, endpoint, body)
	if err != nil {
		if exhausted, ok := err.(*retry.ExhaustedError); ok {
			dispatcher.Notify(context.Background(), alert.Context{
				Operation:     "signal delivery",
				Attempts:      exhausted.Attempts,
				Elapsed:       exhausted.Elapsed,
				LastError:     exhausted.Err.Error(),
				CorrelationID: uuid.NewString(),
			})
		}
		log.Fatalf("Delivery failed: %v", err)
	}

	fmt.Printf("Delivered: status=%d body=%s\n", resp.StatusCode, resp.Body)
}
