package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/grouper"
	"github.com/rafaeljc/grouper/internal/grouping"
	"github.com/rafaeljc/grouper/internal/groupingconfig"
	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/store"
)

// handleGroupEvent processes POST /api/v1/projects/{projectID}/events/grouping.
// The body is a JSON event; the response carries its hashes and variants.
func (a *API) handleGroupEvent(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	projectID := projectFromContext(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "ERR_PAYLOAD_TOO_LARGE", "Event payload exceeds the size limit")
			return
		}
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_BODY", "Failed to read request body")
		return
	}

	ev, err := event.Parse(body)
	if err != nil {
		log.Warn("invalid event payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_JSON", "Invalid event payload: "+err.Error())
		return
	}

	result, err := a.grouping.GroupEvent(r.Context(), projectID, ev)
	if err != nil {
		a.writeServiceError(w, r, err, "Failed to group event")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, newGroupingResponse(result))
}

// handleGetProjectConfig processes GET /api/v1/projects/{projectID}/grouping-config.
func (a *API) handleGetProjectConfig(w http.ResponseWriter, r *http.Request) {
	projectID := projectFromContext(r)

	cfg, err := a.grouping.ProjectConfig(r.Context(), projectID)
	if err != nil {
		a.writeServiceError(w, r, err, "Failed to resolve grouping config")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, cfg)
}

// handleListConfigurations processes GET /api/v1/grouping-configs.
func (a *API) handleListConfigurations(w http.ResponseWriter, r *http.Request) {
	configs := a.grouping.Configurations()
	if configs == nil {
		configs = []grouper.ConfigurationInfo{}
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, ConfigurationsResponse{Data: configs})
}

// handleListOptions processes GET /api/v1/projects/{projectID}/options.
func (a *API) handleListOptions(w http.ResponseWriter, r *http.Request) {
	projectID := projectFromContext(r)

	opts, err := a.grouping.ProjectOptions(r.Context(), projectID)
	if err != nil {
		a.writeServiceError(w, r, err, "Failed to load project options")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, newOptionsResponse(opts))
}

// handlePutOption processes PUT /api/v1/projects/{projectID}/options/{key}.
// Values are validated before they are stored.
func (a *API) handlePutOption(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	projectID := projectFromContext(r)
	key := chi.URLParam(r, "key")

	var req SetOptionRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, a.maxBodyBytes), &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}

	if err := a.grouping.SetProjectOption(r.Context(), projectID, key, req.Value); err != nil {
		a.writeServiceError(w, r, err, "Failed to store project option")
		return
	}

	log.Info("project option updated", slog.String("key", key))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"key": key, "value": req.Value})
}

// handleDeleteOption processes DELETE /api/v1/projects/{projectID}/options/{key}.
func (a *API) handleDeleteOption(w http.ResponseWriter, r *http.Request) {
	projectID := projectFromContext(r)
	key := chi.URLParam(r, "key")

	deleted, err := a.grouping.DeleteProjectOption(r.Context(), projectID, key)
	if err != nil {
		a.writeServiceError(w, r, err, "Failed to delete project option")
		return
	}
	if !deleted {
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", "Option is not set")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Private Helpers ---

// projectFromContext returns the project resolved by scopeProject.
func projectFromContext(r *http.Request) int64 {
	id, _ := logger.ProjectID(r.Context())
	return id
}

// writeServiceError maps domain errors to HTTP status codes.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, grouping.ErrConfigurationNotFound):
		writeError(w, r, http.StatusNotFound, "ERR_CONFIG_NOT_FOUND", err.Error())
	case errors.Is(err, grouping.ErrMalformedConfig),
		errors.Is(err, groupingconfig.ErrInvalidOption),
		errors.Is(err, store.ErrInvalidProjectID):
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_INPUT", err.Error())
	default:
		logger.FromContext(r.Context()).Error(message, slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "ERR_INTERNAL", message)
	}
}
