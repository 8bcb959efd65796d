package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-notifier/internal/model"
)

func TestHandleMessage(t *testing.T) {
	body, err := json.Marshal(model.CampaignDiscovered{
		CampaignID:   "GC123",
		Name:         "Launch Week",
		Status:       "Active",
		Link:         "https://app.galxe.com/quest/Genome/GC123",
		DiscoveredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, handleMessage(&out, body))
	assert.Equal(t,
		"🆕 2024-05-01 12:00:00 | GC123 | Launch Week | Active | https://app.galxe.com/quest/Genome/GC123\n",
		out.String())
}

func TestHandleMessageMissingStatus(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, handleMessage(&out, []byte(`{"campaign_id":"GC1","name":"x"}`)))
	assert.Contains(t, out.String(), "| GC1 | x | N/A |")
}

func TestHandleMessageRejectsBadInput(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, handleMessage(&out, "not bytes"))
	assert.Error(t, handleMessage(&out, []byte("{")))
	assert.Error(t, handleMessage(&out, []byte(`{"name":"no id"}`)))
	assert.Empty(t, out.String())
}
