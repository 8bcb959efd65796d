// internal/handler/status_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/campaign-notifier/internal/errors"
	"github.com/unclebandit/campaign-notifier/internal/gateway"
	"github.com/unclebandit/campaign-notifier/internal/model"
	"github.com/unclebandit/campaign-notifier/internal/service"
)

// PollerStatus is satisfied by *service.Poller.
type PollerStatus interface {
	Status() service.Status
	SeenCount(ctx context.Context) (int, error)
	Seen(ctx context.Context, campaignID string) (*model.SeenCampaign, error)
}

// GatewayStatus is satisfied by *gateway.Supervisor.
type GatewayStatus interface {
	State() gateway.State
}

// StatusHandler serves health, status and metrics endpoints.
type StatusHandler struct {
	Poller  PollerStatus
	Gateway GatewayStatus
	Log     logrus.FieldLogger
}

type statusResponse struct {
	Poller        service.Status `json:"poller"`
	Gateway       string         `json:"gateway"`
	SeenCampaigns *int           `json:"seen_campaigns,omitempty"`
}

// Routes returns the router for the status server.
func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.Health)
	r.Get("/status", h.Status)
	r.Get("/campaigns/{id}", h.GetCampaign)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Health reports 200 while the gateway is connected, 503 otherwise.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	state := h.Gateway.State()
	code := http.StatusOK
	if state != gateway.StateConnected {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, map[string]string{"gateway": state.String()})
}

// Status returns the poller snapshot and gateway state.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Poller:  h.Poller.Status(),
		Gateway: h.Gateway.State().String(),
	}
	if n, err := h.Poller.SeenCount(r.Context()); err == nil {
		resp.SeenCampaigns = &n
	} else if !errors.Is(err, appErrors.ErrStoreUnavailable) {
		h.Log.WithError(err).Warn("counting seen campaigns")
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetCampaign reports whether a campaign id has been recorded.
func (h *StatusHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	seen, err := h.Poller.Seen(r.Context(), id)
	switch {
	case errors.Is(err, appErrors.ErrStoreUnavailable):
		http.Error(w, "store is not open", http.StatusServiceUnavailable)
		return
	case err != nil:
		h.Log.WithError(err).WithField("campaign_id", id).Error("❌ Error fetching campaign")
		http.Error(w, "failed to fetch campaign", http.StatusInternalServerError)
		return
	case seen == nil:
		http.Error(w, "campaign not seen", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, seen)
}

func (h *StatusHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.WithError(err).Debug("writing response")
	}
}
