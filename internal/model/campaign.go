// internal/model/campaign.go
package model

import "time"

// Campaign is a campaign record as returned by the API. Only ID is persisted.
type Campaign struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Tags   []string `json:"tags,omitempty"`
}

// SpaceCampaigns is the aggregated result of paging through a space.
type SpaceCampaigns struct {
	SpaceID   string     `json:"space_id"`
	SpaceName string     `json:"space_name"`
	Campaigns []Campaign `json:"campaigns"`
}

// SeenCampaign is a row of the dedupe store.
type SeenCampaign struct {
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	InsertedAt time.Time `db:"inserted_at" json:"inserted_at"`
}

// CampaignDiscovered is published on the event queue for every new campaign.
type CampaignDiscovered struct {
	CampaignID   string    `json:"campaign_id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Link         string    `json:"link"`
	DiscoveredAt time.Time `json:"discovered_at"`
}
