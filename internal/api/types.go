package api

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/unclebandit/campaign-notifier/internal/model"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// graphQLID accepts ids serialized either as strings or as numbers.
type graphQLID string

func (id *graphQLID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = graphQLID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = graphQLID(n.String())
	return nil
}

type campaignNode struct {
	ID     graphQLID `json:"id"`
	Name   string    `json:"name"`
	Status string    `json:"status"`
	Tags   []string  `json:"tags"`
}

func (n campaignNode) toModel() model.Campaign {
	return model.Campaign{
		ID:     string(n.ID),
		Name:   n.Name,
		Status: n.Status,
		Tags:   n.Tags,
	}
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type spaceCampaignsData struct {
	Space *struct {
		ID        graphQLID `json:"id"`
		Name      string    `json:"name"`
		Campaigns struct {
			Edges []struct {
				Node   campaignNode `json:"node"`
				Cursor string       `json:"cursor"`
			} `json:"edges"`
			PageInfo pageInfo `json:"pageInfo"`
		} `json:"campaigns"`
	} `json:"space"`
}

type campaignDetailsData struct {
	Campaign *campaignNode `json:"campaign"`
}

type testConnectionData struct {
	Space *struct {
		ID   graphQLID `json:"id"`
		Name string    `json:"name"`
	} `json:"space"`
}

func spaceVariables(spaceID, first int, after *string) map[string]any {
	input := map[string]any{"first": first}
	if after != nil {
		input["after"] = *after
	} else {
		input["after"] = nil
	}
	return map[string]any{"id": spaceID, "input": input}
}

