package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thejerf/suture/v4"

	appErrors "github.com/unclebandit/campaign-notifier/internal/errors"
)

// Runner matches (*service.Poller).Run.
type Runner interface {
	Run(ctx context.Context) error
}

// PollService runs the poll loop. Startup-fatal errors stop the service for
// good; the rest of the tree keeps running.
type PollService struct {
	runner Runner
	log    logrus.FieldLogger
}

// NewPollService wraps runner as a supervised service.
func NewPollService(runner Runner, log logrus.FieldLogger) *PollService {
	return &PollService{runner: runner, log: log}
}

// Serve implements suture.Service.
func (p *PollService) Serve(ctx context.Context) error {
	err := p.runner.Run(ctx)
	if errors.Is(err, appErrors.ErrStartupFatal) {
		p.log.WithError(err).Error("❌ Polling stopped, no further cycles will run")
		return suture.ErrDoNotRestart
	}
	return err
}

func (p *PollService) String() string {
	return "campaign-poller"
}

// HTTPServer interface matches *http.Server lifecycle methods.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server until the context is canceled.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server as a supervised service.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is not an error.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string {
	return "status-server"
}
