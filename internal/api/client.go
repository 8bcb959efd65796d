// Package api is the GraphQL client for the campaign API.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	appErrors "github.com/unclebandit/campaign-notifier/internal/errors"
	"github.com/unclebandit/campaign-notifier/internal/model"
)

// DefaultPageSize is the number of campaigns requested per page.
const DefaultPageSize = 50

// Options configures a Client.
type Options struct {
	URL             string
	Token           string
	PageSize        int
	Timeout         time.Duration
	SelfTestTimeout time.Duration
	// FailureThreshold is the number of consecutive failed round trips
	// that opens the circuit breaker. Default: 5
	FailureThreshold uint32
	// BreakerTimeout is how long the breaker stays open. Default: 30s
	BreakerTimeout time.Duration
	HTTPClient     *http.Client
	Log            logrus.FieldLogger
}

// Client talks to the campaign API. Every round trip goes through a circuit
// breaker; an open breaker is reported like any other transport failure.
type Client struct {
	url             string
	token           string
	pageSize        int
	selfTestTimeout time.Duration
	http            *http.Client
	breaker         *gobreaker.CircuitBreaker[[]byte]
	log             logrus.FieldLogger
}

// New creates a Client, applying defaults for zero values.
func New(opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.SelfTestTimeout <= 0 {
		opts.SelfTestTimeout = 5 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	c := &Client{
		url:             opts.URL,
		token:           opts.Token,
		pageSize:        opts.PageSize,
		selfTestTimeout: opts.SelfTestTimeout,
		http:            opts.HTTPClient,
		log:             opts.Log,
	}

	threshold := opts.FailureThreshold
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "campaign-api",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// cancellation is not the API's fault
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state changed")
		},
	})
	return c
}

// TestConnection issues a lightweight query and checks that the API answers
// 200 with a space in the payload. It returns the space name.
func (c *Client) TestConnection(ctx context.Context, spaceID int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.selfTestTimeout)
	defer cancel()

	var data testConnectionData
	if err := c.execute(ctx, "TestConnection", testConnectionQuery, map[string]any{"id": spaceID}, &data); err != nil {
		return "", err
	}
	if data.Space == nil {
		return "", appErrors.NewAPIError("TestConnection", 0, "no space data in response")
	}
	return data.Space.Name, nil
}

// FetchSpaceCampaigns pages through every campaign of a space. It returns
// nil without error when the space does not exist.
func (c *Client) FetchSpaceCampaigns(ctx context.Context, spaceID int) (*model.SpaceCampaigns, error) {
	result := &model.SpaceCampaigns{Campaigns: []model.Campaign{}}
	var after *string

	for page := 1; ; page++ {
		var data spaceCampaignsData
		if err := c.execute(ctx, "GetCampaigns", spaceCampaignsQuery, spaceVariables(spaceID, c.pageSize, after), &data); err != nil {
			return nil, fmt.Errorf("fetch space %d page %d: %w", spaceID, page, err)
		}
		if data.Space == nil {
			c.log.WithField("space_id", spaceID).Info("No space found")
			return nil, nil
		}

		result.SpaceID = string(data.Space.ID)
		result.SpaceName = data.Space.Name
		for _, edge := range data.Space.Campaigns.Edges {
			result.Campaigns = append(result.Campaigns, edge.Node.toModel())
		}

		info := data.Space.Campaigns.PageInfo
		if !info.HasNextPage {
			break
		}
		if info.EndCursor == "" || (after != nil && *after == info.EndCursor) {
			return nil, fmt.Errorf("fetch space %d page %d: %w", spaceID, page, appErrors.ErrCursorStalled)
		}
		next := info.EndCursor
		after = &next
	}

	return result, nil
}

// FetchCampaignDetails returns one campaign, or nil without error when the
// API has no campaign with that id.
func (c *Client) FetchCampaignDetails(ctx context.Context, campaignID string) (*model.Campaign, error) {
	var data campaignDetailsData
	if err := c.execute(ctx, "GetCampaignDetails", campaignDetailsQuery, map[string]any{"id": campaignID}, &data); err != nil {
		return nil, fmt.Errorf("fetch campaign %s: %w", campaignID, err)
	}
	if data.Campaign == nil {
		c.log.WithField("campaign_id", campaignID).Info("No campaign found")
		return nil, nil
	}
	campaign := data.Campaign.toModel()
	return &campaign, nil
}

// execute runs one GraphQL operation and decodes its data into out.
func (c *Client) execute(ctx context.Context, operation, query string, vars map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", operation, err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, operation, payload)
	})
	if err != nil {
		return err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%s: invalid JSON response: %w", operation, err)
	}
	noData := len(resp.Data) == 0 || bytes.Equal(resp.Data, []byte("null"))
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		if noData {
			return appErrors.NewAPIError(operation, 0, strings.Join(msgs, "; "))
		}
		// partial result: null nodes in data decide absence
		c.log.WithFields(logrus.Fields{
			"operation": operation,
			"errors":    strings.Join(msgs, "; "),
		}).Warn("⚠️ API returned errors alongside data")
	}
	if noData {
		return appErrors.NewAPIError(operation, 0, "response has no data")
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%s: malformed data: %w", operation, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, operation string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", operation, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.NewAPIError(operation, resp.StatusCode, string(body))
	}
	return body, nil
}
