// Package api serves the JSON sync endpoint and the read views of canonical events.
package api

import (
	"context"
	"errors"
	"net/http"

	httperrors "gitea.jw6.us/james/calsync/internal/http/errors"
	"gitea.jw6.us/james/calsync/internal/http/render"
	"gitea.jw6.us/james/calsync/internal/provider"
	"gitea.jw6.us/james/calsync/internal/store"
	"gitea.jw6.us/james/calsync/internal/syncer"
)

const maxBodyBytes = 1 << 16

// Syncer runs one orchestrated provider sync.
type Syncer interface {
	Sync(ctx context.Context, req syncer.Request) (*syncer.Result, error)
}

type Handler struct {
	sync   Syncer
	events store.EventRepository
}

func NewHandler(sync Syncer, events store.EventRepository) *Handler {
	return &Handler{sync: sync, events: events}
}

type syncResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Sync handles POST /sync with a {provider, token, userId} body.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncer.Request
	if err := render.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid JSON body")
		return
	}

	res, err := h.sync.Sync(r.Context(), req)
	if err != nil {
		var missing *syncer.MissingParameterError
		switch {
		case errors.As(err, &missing):
			httperrors.BadRequestError(w, r, err, err.Error())
		case errors.Is(err, provider.ErrUnknownProvider):
			httperrors.NotFoundError(w, r, err, err.Error())
		default:
			httperrors.InternalError(w, r, err, err.Error())
		}
		return
	}

	render.JSON(w, http.StatusOK, syncResponse{Message: "Success", Count: res.Count})
}

// ListEvents handles GET /events?userId=&source=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, ok := h.loadEvents(w, r)
	if !ok {
		return
	}
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, newEventView(ev))
	}
	render.JSON(w, http.StatusOK, views)
}

// ExportICS handles GET /events.ics?userId=&source=.
func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	events, ok := h.loadEvents(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.ics"`)
	if err := writeICS(w, events); err != nil {
		httperrors.LogError(r, "write ics export", err)
	}
}

func (h *Handler) loadEvents(w http.ResponseWriter, r *http.Request) ([]store.Event, bool) {
	q := r.URL.Query()
	userID := q.Get("userId")
	if userID == "" {
		err := &syncer.MissingParameterError{Field: "userId"}
		httperrors.BadRequestError(w, r, err, err.Error())
		return nil, false
	}

	var source store.Source
	if raw := q.Get("source"); raw != "" {
		parsed, ok := store.ParseSource(raw)
		if !ok {
			httperrors.BadRequestError(w, r, errors.New("unknown source "+raw), "unknown source: "+raw)
			return nil, false
		}
		source = parsed
	}

	events, err := h.events.ListByUser(r.Context(), userID, source)
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to load events")
		return nil, false
	}
	return events, true
}
