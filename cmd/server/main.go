// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/campaign-notifier/internal/api"
	"github.com/unclebandit/campaign-notifier/internal/config"
	"github.com/unclebandit/campaign-notifier/internal/gateway"
	"github.com/unclebandit/campaign-notifier/internal/handler"
	"github.com/unclebandit/campaign-notifier/internal/logging"
	"github.com/unclebandit/campaign-notifier/internal/notify"
	"github.com/unclebandit/campaign-notifier/internal/queue"
	"github.com/unclebandit/campaign-notifier/internal/repository"
	"github.com/unclebandit/campaign-notifier/internal/service"
	"github.com/unclebandit/campaign-notifier/internal/supervisor"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "⚠️ failed to read .env:", err)
	}
	cfg := config.FromEnv()
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if cfg.DiscordBotToken == "" {
		log.Error("❌ DISCORD_BOT_TOKEN environment variable not set!")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("❌ invalid configuration")
		os.Exit(1)
	}
	spaceID, _ := cfg.SpaceIDInt()

	discord, err := gateway.NewDiscord(cfg.DiscordBotToken, cfg.GatewayTimeout, log.WithField("component", "gateway"))
	if err != nil {
		log.WithError(err).Error("❌ failed to create Discord session")
		os.Exit(1)
	}
	connection := gateway.NewSupervisor(discord, cfg.ReconnectDelay, log.WithField("component", "gateway"))

	notifier := notify.New(discord.Session, cfg, log.WithField("component", "notifier"))

	client := api.New(api.Options{
		URL:             cfg.APIURL,
		Token:           cfg.APIToken,
		PageSize:        cfg.PageSize,
		Timeout:         cfg.RequestTimeout,
		SelfTestTimeout: cfg.SelfTestTimeout,
		Log:             log.WithField("component", "api"),
	})

	openStore := func(ctx context.Context) (repository.SeenCampaignRepositoryInterface, error) {
		repo, err := repository.OpenSeenCampaigns(ctx, cfg.DBDriver, cfg.DSN())
		if err != nil {
			return nil, err
		}
		return repo, nil
	}

	poller := service.NewPoller(service.PollerConfig{
		SpaceID:    spaceID,
		CampaignID: cfg.CampaignID,
		Interval:   cfg.PollInterval,
		HasToken:   cfg.HasAPIToken(),
	}, client, openStore, notifier, log.WithField("component", "poller"))
	poller.Ready = discord.Ready()
	poller.Link = notifier.Link

	if cfg.AMQPURL != "" {
		q, err := queue.DialAMQP(cfg.AMQPURL, log.WithField("component", "queue"))
		if err != nil {
			log.WithError(err).Warn("⚠️ RabbitMQ unavailable, discovery events disabled")
		} else {
			defer q.Close()
			poller.Queue = q
			poller.Topic = cfg.AMQPQueue
		}
	}

	tree := supervisor.NewTree(log.WithField("component", "supervisor"), supervisor.DefaultTreeConfig())
	tree.Add(connection)
	tree.Add(supervisor.NewPollService(poller, log.WithField("component", "poller")))
	if cfg.HTTPAddr != "" {
		status := &handler.StatusHandler{Poller: poller, Gateway: connection, Log: log.WithField("component", "http")}
		server := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           status.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		tree.Add(supervisor.NewHTTPService(server, 10*time.Second))
		log.WithField("addr", cfg.HTTPAddr).Info("🚀 Status server enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := "space"
	if cfg.SingleCampaign() {
		mode = "campaign"
	}
	log.WithFields(logrus.Fields{
		"mode":        mode,
		"space_id":    spaceID,
		"campaign_id": cfg.CampaignID,
		"interval":    cfg.PollInterval,
	}).Info("🚀 Starting campaign notifier")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("supervisor stopped")
	}
	log.Info("👋 Shut down")
}
