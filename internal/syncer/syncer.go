// Package syncer drives one provider sync: fetch the window, normalize every
// record and replace the user's events for that provider.
package syncer

import (
	"context"
	"fmt"
	"log"

	"gitea.jw6.us/james/calsync/internal/metrics"
	"gitea.jw6.us/james/calsync/internal/provider"
	"gitea.jw6.us/james/calsync/internal/store"
)

// Providers resolves a provider tag.
type Providers interface {
	Lookup(tag string) (provider.Provider, error)
}

// Request is the input of one sync.
type Request struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
	UserID   string `json:"userId"`
}

type Result struct {
	Provider store.Source
	Count    int
}

type Orchestrator struct {
	providers Providers
	events    store.EventRepository
}

func New(providers Providers, events store.EventRepository) *Orchestrator {
	return &Orchestrator{providers: providers, events: events}
}

// Sync runs a full-replace sync for (req.UserID, req.Provider). Fetching and
// normalization finish before the store is touched, so a provider failure
// leaves the stored events unchanged.
func (o *Orchestrator) Sync(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	p, err := o.providers.Lookup(req.Provider)
	if err != nil {
		return nil, err
	}
	source := p.Name()

	res, err := o.run(ctx, p, req)
	metrics.ObserveSync(string(source), err, resultCount(res))
	if err != nil {
		log.Printf("[ERROR] %ssync %s for user %s: %v", logPrefix(ctx), source, req.UserID, err)
		return nil, err
	}
	log.Printf("[INFO] %ssynced %d %s events for user %s", logPrefix(ctx), res.Count, source, req.UserID)
	return res, nil
}

// logPrefix tags log lines with the HTTP request id when the sync runs inside a request.
func logPrefix(ctx context.Context) string {
	if id := metrics.RequestIDFromContext(ctx); id != "" {
		return "RequestID=" + id + ": "
	}
	return ""
}

func (o *Orchestrator) run(ctx context.Context, p provider.Provider, req Request) (*Result, error) {
	raw, err := p.FetchEvents(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	events := make([]store.Event, 0, len(raw))
	for _, rec := range raw {
		ev, err := p.Normalize(rec)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	n, err := o.events.ReplaceForSource(ctx, req.UserID, p.Name(), events)
	if err != nil {
		return nil, &StorageError{Op: fmt.Sprintf("replace %s events", p.Name()), Err: err}
	}
	return &Result{Provider: p.Name(), Count: n}, nil
}

func (r Request) validate() error {
	switch {
	case r.Provider == "":
		return &MissingParameterError{Field: "provider"}
	case r.Token == "":
		return &MissingParameterError{Field: "token"}
	case r.UserID == "":
		return &MissingParameterError{Field: "userId"}
	}
	return nil
}

func resultCount(r *Result) int {
	if r == nil {
		return 0
	}
	return r.Count
}
