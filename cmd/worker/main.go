// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"

	"github.com/unclebandit/campaign-notifier/internal/config"
	"github.com/unclebandit/campaign-notifier/internal/logging"
	"github.com/unclebandit/campaign-notifier/internal/model"
	"github.com/unclebandit/campaign-notifier/internal/queue"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "⚠️ failed to read .env:", err)
	}
	cfg := config.FromEnv()
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if cfg.AMQPURL == "" {
		log.Fatal("❌ AMQP_URL is not set")
	}

	q, err := queue.DialAMQP(cfg.AMQPURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	defer q.Close()

	if err := q.Subscribe(cfg.AMQPQueue, func(payload any) error {
		return handleMessage(os.Stdout, payload)
	}); err != nil {
		log.WithError(err).Fatal("Failed to register consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("queue", cfg.AMQPQueue).Info("Worker running, waiting for messages...")
	<-ctx.Done()
	log.Info("Worker stopped")
}

// handleMessage decodes a discovery event and prints it to out.
func handleMessage(out io.Writer, payload any) error {
	body, ok := payload.([]byte)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", payload)
	}

	var event model.CampaignDiscovered
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	if event.CampaignID == "" {
		return fmt.Errorf("event without campaign id")
	}

	return report(out, event)
}

func report(out io.Writer, event model.CampaignDiscovered) error {
	status := event.Status
	if status == "" {
		status = "N/A"
	}
	_, err := fmt.Fprintf(out, "🆕 %s | %s | %s | %s | %s\n",
		event.DiscoveredAt.Format("2006-01-02 15:04:05"),
		event.CampaignID,
		event.Name,
		status,
		event.Link,
	)
	return err
}
