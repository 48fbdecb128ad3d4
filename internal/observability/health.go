package observability

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"
)

// ReadinessResponse is the body of the readiness endpoint.
type ReadinessResponse struct {
	Ready    bool              `json:"ready"`
	Status   map[string]string `json:"status"`
	Grouping *RegistryInfo     `json:"grouping,omitempty"`
}

func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	render.PlainText(w, r, "ok")
}

// readiness runs every checker concurrently under the configured timeout. A single
// failing dependency makes the process unready.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	resp := ReadinessResponse{Ready: true, Status: make(map[string]string, len(s.checkers))}
	var mu sync.Mutex

	var g errgroup.Group
	for _, c := range s.checkers {
		g.Go(func() error {
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("readiness check failed", slog.String("component", c.Name()), slog.String("error", err.Error()))
				resp.Status[c.Name()] = "down: " + err.Error()
				resp.Ready = false
				return nil
			}
			resp.Status[c.Name()] = "up"
			return nil
		})
	}
	_ = g.Wait()

	if s.registry != nil {
		info := s.registry.Registry()
		resp.Grouping = &info
	}

	if resp.Ready {
		render.Status(r, http.StatusOK)
	} else {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
