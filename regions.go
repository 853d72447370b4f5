package profilecache

import (
	"time"

	"github.com/always-cache/profile-cache/pkg/freshness"
	"github.com/always-cache/profile-cache/pkg/inflight"
	"github.com/always-cache/profile-cache/pkg/profile"
)

// Region names one of the four cache scopes.
type Region string

const (
	// The signed-in user's own profile.
	RegionOwn Region = "own"
	// Any other user's profile, filled from the user list when possible.
	RegionUser Region = "user"
	// The profile currently being visited, kept for a shorter time.
	RegionVisited Region = "visited"
	// The list of all users.
	RegionAll Region = "all"
)

// listKey is the single key the list region is tracked under.
const listKey = "all"

// ProfileState is a snapshot of a single-profile region.
type ProfileState struct {
	// Id the held record belongs to. Empty when nothing is cached.
	ID     string          `json:"id"`
	Record *profile.Record `json:"record"`
	// Loading is set while a request for the region is outstanding.
	Loading bool `json:"loading"`
	// Err is the failure of the last load, cleared by the next successful one.
	Err          error     `json:"-"`
	ErrorMessage string    `json:"error,omitempty"`
	FetchedAt    time.Time `json:"fetchedAt,omitempty"`
}

// ListState is a snapshot of the user list region.
type ListState struct {
	Records      []profile.Record `json:"records"`
	Loaded       bool             `json:"loaded"`
	Loading      bool             `json:"loading"`
	Err          error            `json:"-"`
	ErrorMessage string           `json:"error,omitempty"`
	FetchedAt    time.Time        `json:"fetchedAt,omitempty"`
}

type profileRegion struct {
	name     Region
	tracker  *freshness.Tracker
	inFlight *inflight.Registry
	// current record, tagged with the id it was loaded for
	current   *profile.Record
	currentID string
	loading   int
	err       error
}

func newProfileRegion(name Region, ttl, debounce time.Duration, now func() time.Time) *profileRegion {
	return &profileRegion{
		name:     name,
		tracker:  freshness.NewTracker(ttl, debounce, now),
		inFlight: inflight.New(),
	}
}

func (r *profileRegion) holds(id string) bool {
	return r.current != nil && r.currentID == id
}

func (r *profileRegion) store(id string, rec profile.Record, at time.Time) {
	if rec.ID == "" {
		rec.ID = id
	}
	r.current = &rec
	r.currentID = id
	r.err = nil
	r.tracker.MarkFetched(id, at)
}

func (r *profileRegion) reset() {
	r.current = nil
	r.currentID = ""
	r.loading = 0
	r.err = nil
	r.tracker.Reset()
	r.inFlight.Reset()
}

func (r *profileRegion) state() ProfileState {
	s := ProfileState{
		ID:      r.currentID,
		Loading: r.loading > 0,
		Err:     r.err,
	}
	if r.current != nil {
		rec := *r.current
		s.Record = &rec
		s.FetchedAt, _ = r.tracker.FetchedAt(r.currentID)
	}
	if r.err != nil {
		s.ErrorMessage = errorMessage(r.err)
	}
	return s
}

type listRegion struct {
	tracker  *freshness.Tracker
	inFlight *inflight.Registry
	records  []profile.Record
	index    map[string]int
	loaded   bool
	loading  int
	err      error
}

func newListRegion(ttl, debounce time.Duration, now func() time.Time) *listRegion {
	return &listRegion{
		tracker:  freshness.NewTracker(ttl, debounce, now),
		inFlight: inflight.New(),
		records:  make([]profile.Record, 0),
		index:    make(map[string]int),
	}
}

func (l *listRegion) find(id string) (profile.Record, bool) {
	i, ok := l.index[id]
	if !ok {
		return profile.Record{}, false
	}
	return l.records[i], true
}

func (l *listRegion) store(records []profile.Record, at time.Time) {
	l.records = records
	l.index = make(map[string]int, len(records))
	for i, rec := range records {
		if rec.ID != "" {
			l.index[rec.ID] = i
		}
	}
	l.loaded = true
	l.err = nil
	l.tracker.MarkFetched(listKey, at)
}

func (l *listRegion) reset() {
	l.records = make([]profile.Record, 0)
	l.index = make(map[string]int)
	l.loaded = false
	l.loading = 0
	l.err = nil
	l.tracker.Reset()
	l.inFlight.Reset()
}

func (l *listRegion) state() ListState {
	s := ListState{
		Records: append([]profile.Record{}, l.records...),
		Loaded:  l.loaded,
		Loading: l.loading > 0,
		Err:     l.err,
	}
	if l.loaded {
		s.FetchedAt, _ = l.tracker.FetchedAt(listKey)
	}
	if l.err != nil {
		s.ErrorMessage = errorMessage(l.err)
	}
	return s
}
