package profilecache

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/always-cache/profile-cache/notify"
	"github.com/go-chi/chi/v5"
)

// historyReader is implemented by emitters that keep past notifications.
type historyReader interface {
	Items() []notify.Notification
}

// ServeHTTP implements the http.Handler interface.
// It exposes the cache state and starts loads for inspection tools.
func (p *ProfileCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}

func (p *ProfileCache) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/profiles", func(w http.ResponseWriter, r *http.Request) {
		p.writeJSON(w, http.StatusOK, p.AllProfiles())
	})
	r.Get("/profiles/{region}", func(w http.ResponseWriter, r *http.Request) {
		region, ok := p.profileRegion(Region(chi.URLParam(r, "region")))
		if !ok {
			http.NotFound(w, r)
			return
		}
		p.mu.Lock()
		state := region.state()
		p.mu.Unlock()
		p.writeJSON(w, http.StatusOK, state)
	})
	r.Post("/profiles/load", func(w http.ResponseWriter, r *http.Request) {
		force := r.URL.Query().Get("force") == "true"
		ctx := context.WithoutCancel(r.Context())
		go p.LoadAllProfiles(ctx, force)
		w.WriteHeader(http.StatusAccepted)
	})
	r.Post("/profiles/{region}/{id}/load", func(w http.ResponseWriter, r *http.Request) {
		region, ok := p.profileRegion(Region(chi.URLParam(r, "region")))
		if !ok {
			http.NotFound(w, r)
			return
		}
		id := chi.URLParam(r, "id")
		force := r.URL.Query().Get("force") == "true"
		ctx := context.WithoutCancel(r.Context())
		go p.loadProfile(ctx, region, id, loadOptions{force: force})
		w.WriteHeader(http.StatusAccepted)
	})
	r.Post("/profiles/{id}/invalidate", func(w http.ResponseWriter, r *http.Request) {
		p.Invalidate(chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		p.Logout()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/notifications", func(w http.ResponseWriter, r *http.Request) {
		history, ok := p.notifier.(historyReader)
		if !ok {
			http.NotFound(w, r)
			return
		}
		p.writeJSON(w, http.StatusOK, history.Items())
	})
	return r
}

func (p *ProfileCache) writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		p.log.Error().Err(err).Msg("Could not encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		p.log.Error().Err(err).Msg("Could not write response body to client")
	}
}
