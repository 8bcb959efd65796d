package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/campaign-notifier/internal/db"
	appErrors "github.com/unclebandit/campaign-notifier/internal/errors"
	"github.com/unclebandit/campaign-notifier/internal/model"
)

type SeenCampaignRepositoryInterface interface {
	Exists(ctx context.Context, campaignID string) (bool, error)
	// Insert returns appErrors.ErrAlreadySeen when the id was already stored.
	Insert(ctx context.Context, campaignID string) error
	Get(ctx context.Context, campaignID string) (*model.SeenCampaign, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// SeenCampaignRepository stores campaign ids in the seen_campaigns table.
// The SQL is shared by the postgres and sqlite drivers.
type SeenCampaignRepository struct {
	DB *sql.DB
}

// OpenSeenCampaigns opens the store and ensures the schema exists.
func OpenSeenCampaigns(ctx context.Context, driver, dsn string) (*SeenCampaignRepository, error) {
	conn, err := db.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	return &SeenCampaignRepository{DB: conn}, nil
}

func (r *SeenCampaignRepository) Exists(ctx context.Context, campaignID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		`SELECT 1 FROM seen_campaigns WHERE campaign_id = $1 LIMIT 1`, campaignID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check campaign %s: %w", campaignID, err)
	}
	return true, nil
}

// Insert records campaignID. Only the caller whose insert wrote the row gets
// a nil error, so check-then-insert races resolve to a single winner.
func (r *SeenCampaignRepository) Insert(ctx context.Context, campaignID string) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO seen_campaigns (campaign_id) VALUES ($1) ON CONFLICT (campaign_id) DO NOTHING`, campaignID,
	)
	if err != nil {
		return fmt.Errorf("insert campaign %s: %w", campaignID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert campaign %s: %w", campaignID, err)
	}
	if n == 0 {
		return appErrors.ErrAlreadySeen
	}
	return nil
}

// Get returns the stored row, or nil when campaignID was never seen.
func (r *SeenCampaignRepository) Get(ctx context.Context, campaignID string) (*model.SeenCampaign, error) {
	var (
		sc  model.SeenCampaign
		raw any
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT campaign_id, inserted_at FROM seen_campaigns WHERE campaign_id = $1`, campaignID,
	).Scan(&sc.CampaignID, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get campaign %s: %w", campaignID, err)
	}
	sc.InsertedAt, err = parseTimestamp(raw)
	if err != nil {
		return nil, fmt.Errorf("get campaign %s: %w", campaignID, err)
	}
	return &sc, nil
}

func (r *SeenCampaignRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_campaigns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return n, nil
}

func (r *SeenCampaignRepository) Close() error {
	return r.DB.Close()
}

// sqlite may hand back CURRENT_TIMESTAMP as text
func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTimestampText(t)
	case []byte:
		return parseTimestampText(string(t))
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("unexpected inserted_at type %T", v)
}

func parseTimestampText(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable inserted_at %q", s)
}

var _ SeenCampaignRepositoryInterface = (*SeenCampaignRepository)(nil)
