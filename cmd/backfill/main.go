// cmd/backfill/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/campaign-notifier/internal/api"
	"github.com/unclebandit/campaign-notifier/internal/config"
	appErrors "github.com/unclebandit/campaign-notifier/internal/errors"
	"github.com/unclebandit/campaign-notifier/internal/logging"
	"github.com/unclebandit/campaign-notifier/internal/model"
	"github.com/unclebandit/campaign-notifier/internal/repository"
)

// Records every campaign currently in the space as seen, without notifying,
// so the first notifier run does not announce the whole backlog.
func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "⚠️ failed to read .env:", err)
	}
	cfg := config.FromEnv()
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if !cfg.HasAPIToken() {
		log.Fatal("❌ API_ACCESS_TOKEN is not set")
	}
	spaceID, err := cfg.SpaceIDInt()
	if err != nil {
		log.WithError(err).Fatal("❌ invalid SPACE_ID")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.OpenSeenCampaigns(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.WithError(err).Fatal("❌ failed to open store")
	}
	defer repo.Close()

	client := api.New(api.Options{
		URL:             cfg.APIURL,
		Token:           cfg.APIToken,
		PageSize:        cfg.PageSize,
		Timeout:         cfg.RequestTimeout,
		SelfTestTimeout: cfg.SelfTestTimeout,
		Log:             log,
	})

	var campaigns []model.Campaign
	if cfg.SingleCampaign() {
		campaigns, err = fetchCampaign(ctx, client, cfg.CampaignID)
	} else {
		campaigns, err = fetchSpace(ctx, client, spaceID)
	}
	if err != nil {
		log.WithError(err).Fatal("❌ failed to fetch campaigns")
	}

	inserted, err := backfill(ctx, repo, campaigns, log)
	if err != nil {
		log.WithError(err).Fatal("❌ backfill interrupted")
	}
	fmt.Printf("Backfill completed: %d fetched, %d newly recorded\n", len(campaigns), inserted)
}

type campaignSource interface {
	FetchSpaceCampaigns(ctx context.Context, spaceID int) (*model.SpaceCampaigns, error)
	FetchCampaignDetails(ctx context.Context, campaignID string) (*model.Campaign, error)
}

func fetchSpace(ctx context.Context, src campaignSource, spaceID int) ([]model.Campaign, error) {
	space, err := src.FetchSpaceCampaigns(ctx, spaceID)
	if err != nil || space == nil {
		return nil, err
	}
	return space.Campaigns, nil
}

func fetchCampaign(ctx context.Context, src campaignSource, campaignID string) ([]model.Campaign, error) {
	c, err := src.FetchCampaignDetails(ctx, campaignID)
	if err != nil || c == nil {
		return nil, err
	}
	return []model.Campaign{*c}, nil
}

// backfill inserts every id and returns how many rows were new. Insert
// failures are logged and skipped.
func backfill(ctx context.Context, repo repository.SeenCampaignRepositoryInterface, campaigns []model.Campaign, log logrus.FieldLogger) (int, error) {
	inserted := 0
	for _, c := range campaigns {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		err := repo.Insert(ctx, c.ID)
		switch {
		case err == nil:
			inserted++
		case errors.Is(err, appErrors.ErrAlreadySeen):
		default:
			log.WithError(err).WithField("campaign_id", c.ID).Warn("⚠️ failed to record campaign")
		}
	}
	return inserted, nil
}
