// Package profilecache caches user profiles fetched from the profile REST API.
//
// Four regions (own profile, other user, visited profile and the user list) decide
// independently whether a load is served from memory or sent to the network.
// All bookkeeping happens under a single lock; only the request itself runs outside it.
package profilecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/always-cache/profile-cache/notify"
	apiclient "github.com/always-cache/profile-cache/pkg/api-client"
	fetchstatus "github.com/always-cache/profile-cache/pkg/fetch-status"
	"github.com/always-cache/profile-cache/pkg/inflight"
	"github.com/always-cache/profile-cache/pkg/profile"

	"github.com/rs/zerolog"
)

const (
	DefaultProfileTTL = 5 * time.Minute
	DefaultVisitedTTL = time.Minute
	DefaultListTTL    = 5 * time.Minute
	DefaultDebounce   = 5 * time.Second
)

// ErrNoUserID is returned when the own profile is loaded without an id
// and no own profile has been loaded before.
var ErrNoUserID = errors.New("no user id")

// API is the REST API the cache loads from. *apiclient.Client implements it.
type API interface {
	GetUser(ctx context.Context, id string) ([]byte, error)
	GetUsers(ctx context.Context) ([]byte, error)
	UpdateProfile(ctx context.Context, id string, patch any) error
	Send(ctx context.Context, method, path string, body any) ([]byte, error)
}

type Config struct {
	// API to load profiles from. Required.
	API API
	// Receives user-facing messages. Notifications are dropped if nil.
	Notifier notify.Emitter
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Clock. time.Now is used if nil.
	Now func() time.Time
	// Time-to-live per region. Zero values use the defaults.
	OwnTTL     time.Duration
	UserTTL    time.Duration
	VisitedTTL time.Duration
	ListTTL    time.Duration
	// Minimum spacing of load attempts for the same id.
	Debounce time.Duration
}

func (c Config) withDefaults() Config {
	if c.OwnTTL == 0 {
		c.OwnTTL = DefaultProfileTTL
	}
	if c.UserTTL == 0 {
		c.UserTTL = DefaultProfileTTL
	}
	if c.VisitedTTL == 0 {
		c.VisitedTTL = DefaultVisitedTTL
	}
	if c.ListTTL == 0 {
		c.ListTTL = DefaultListTTL
	}
	if c.Debounce == 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Notifier == nil {
		c.Notifier = notify.Discard
	}
	return c
}

// Validate checks the configuration after defaults have been applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.API == nil {
		return errors.New("no API configured")
	}
	for name, d := range map[string]time.Duration{
		"own TTL":     c.OwnTTL,
		"user TTL":    c.UserTTL,
		"visited TTL": c.VisitedTTL,
		"list TTL":    c.ListTTL,
		"debounce":    c.Debounce,
	} {
		if d < 0 {
			return fmt.Errorf("%s is negative: %v", name, d)
		}
	}
	if c.VisitedTTL >= c.OwnTTL || c.VisitedTTL >= c.UserTTL {
		return fmt.Errorf("visited TTL %v must be shorter than own TTL %v and user TTL %v", c.VisitedTTL, c.OwnTTL, c.UserTTL)
	}
	return nil
}

type ProfileCache struct {
	mu       sync.Mutex
	api      API
	notifier notify.Emitter
	log      zerolog.Logger
	now      func() time.Time

	own     *profileRegion
	user    *profileRegion
	visited *profileRegion
	all     *listRegion
	// time each id was last loaded by any region
	cachedAt map[string]time.Time
	// per-id invalidation counts; a load that sees the count change
	// while in flight stores its record stale
	invalidations map[string]uint64
	// incremented by every Invalidate, checked by list loads
	invalidated uint64
	// incremented on logout, loads started before are discarded
	generation uint64

	subs   subscribers
	router http.Handler
}

// CreateCache initializes the profile cache.
func CreateCache(config Config) (*ProfileCache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	p := &ProfileCache{
		api:      config.API,
		notifier: config.Notifier,
		log:      logger.With().Str("component", "profile-cache").Logger(),
		now:      config.Now,
		own:      newProfileRegion(RegionOwn, config.OwnTTL, config.Debounce, config.Now),
		user:     newProfileRegion(RegionUser, config.UserTTL, config.Debounce, config.Now),
		visited:  newProfileRegion(RegionVisited, config.VisitedTTL, config.Debounce, config.Now),
		all:      newListRegion(config.ListTTL, config.Debounce, config.Now),
		cachedAt: make(map[string]time.Time),
		subs:     newSubscribers(),

		invalidations: make(map[string]uint64),
	}
	p.router = p.routes()

	p.log.Debug().
		Dur("own", config.OwnTTL).
		Dur("user", config.UserTTL).
		Dur("visited", config.VisitedTTL).
		Dur("list", config.ListTTL).
		Dur("debounce", config.Debounce).
		Msg("Profile cache created")
	return p, nil
}

type loadOptions struct {
	force bool
	// quiet suppresses the notifications of a forced load
	quiet bool
}

// LoadOwnProfile loads the signed-in user's profile into the own region.
// An empty id reloads the profile currently held by the region.
func (p *ProfileCache) LoadOwnProfile(ctx context.Context, id string, force bool) error {
	if id == "" {
		p.mu.Lock()
		id = p.own.currentID
		p.mu.Unlock()
		if id == "" {
			return ErrNoUserID
		}
	}
	return p.loadProfile(ctx, p.own, id, loadOptions{force: force})
}

// LoadUserProfile loads another user's profile into the user region.
// A member of the user list is adopted without a request.
func (p *ProfileCache) LoadUserProfile(ctx context.Context, id string, force bool) error {
	return p.loadProfile(ctx, p.user, id, loadOptions{force: force})
}

// LoadVisitedProfile loads the profile being visited.
func (p *ProfileCache) LoadVisitedProfile(ctx context.Context, id string, force bool) error {
	return p.loadProfile(ctx, p.visited, id, loadOptions{force: force})
}

// loadProfile runs one load of id into the region.
// The returned error is also stored on the region; skipped and served loads return nil.
func (p *ProfileCache) loadProfile(ctx context.Context, r *profileRegion, id string, opts loadOptions) error {
	if id == "" {
		return ErrNoUserID
	}
	log := p.log.With().Str("region", string(r.name)).Str("id", id).Logger()

	var fs fetchstatus.FetchStatus
	p.mu.Lock()
	guard, fetch, changed := p.decideProfile(r, id, opts.force, &fs)
	gen := p.generation
	inv := p.invalidations[id]
	if fetch {
		r.loading++
	}
	p.mu.Unlock()

	if !fetch {
		log.Debug().Str("status", fs.String()).Msg("Load served")
		if changed {
			p.publish(r.name)
		}
		return nil
	}
	defer guard.Release()
	p.publish(r.name)

	log.Trace().Str("status", fs.String()).Msg("Fetching profile")
	raw, err := p.api.GetUser(ctx, id)

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		log.Debug().Msg("Discarding profile loaded before logout")
		return err
	}
	r.loading--
	if err != nil {
		r.err = err
	} else {
		now := p.now()
		r.store(id, profile.Normalize(raw), now)
		if inv != p.invalidations[id] {
			// invalidated while loading, the response may predate the change
			r.tracker.Forget(id)
			fs.Detail("invalidated")
		} else {
			p.cachedAt[id] = now
		}
		fs.Stored = true
	}
	p.mu.Unlock()
	p.publish(r.name)

	if err != nil {
		log.Warn().Err(err).Str("status", fs.String()).Msg("Could not load profile")
	} else {
		log.Debug().Str("status", fs.String()).Msg("Profile loaded")
	}
	if opts.force && !opts.quiet {
		p.notifyResult(err, "Profile refreshed")
	}
	return err
}

// decideProfile decides whether id must be fetched for the region.
// It returns the registry guard (nil for unregistered forced fetches), whether to fetch,
// and whether the region changed without a fetch.
// must hold p.mu
func (p *ProfileCache) decideProfile(r *profileRegion, id string, force bool, fs *fetchstatus.FetchStatus) (*inflight.Guard, bool, bool) {
	if force {
		r.tracker.RecordAttempt(id)
		fs.Forward(fetchstatus.FwdReasonRequest)
		guard, ok := r.inFlight.Acquire(id)
		fs.Collapsed = !ok
		return guard, true, false
	}
	if r.inFlight.Has(id) {
		fs.Skip(fetchstatus.SkipReasonInFlight)
		return nil, false, false
	}
	if r.tracker.ShouldDebounce(id, r.inFlight) {
		fs.Skip(fetchstatus.SkipReasonDebounced)
		return nil, false, false
	}
	if r.holds(id) && r.tracker.IsFresh(id) {
		fs.Hit()
		return nil, false, false
	}
	if r.name == RegionUser && !r.holds(id) {
		rec, listed := p.all.find(id)
		// an invalidated id has no shared timestamp and is fetched instead
		if at, ok := p.cachedAt[id]; listed && ok {
			r.store(id, rec.WithoutCollections(), at)
			fs.Hit()
			fs.Detail("list")
			return nil, false, true
		}
	}

	switch {
	case r.current == nil:
		fs.Forward(fetchstatus.FwdReasonMiss)
	case r.currentID != id:
		fs.Forward(fetchstatus.FwdReasonIDMiss)
	default:
		fs.Forward(fetchstatus.FwdReasonStale)
	}
	// cannot fail: every registration happens under p.mu and Has was false
	guard, _ := r.inFlight.Acquire(id)
	return guard, true, false
}

// LoadAllProfiles loads the user list.
// On success every member's shared timestamp is set to the list's.
func (p *ProfileCache) LoadAllProfiles(ctx context.Context, force bool) error {
	l := p.all
	log := p.log.With().Str("region", string(RegionAll)).Logger()

	var fs fetchstatus.FetchStatus
	var guard *inflight.Guard
	fetch := true
	p.mu.Lock()
	switch {
	case force:
		l.tracker.RecordAttempt(listKey)
		fs.Forward(fetchstatus.FwdReasonRequest)
		var ok bool
		guard, ok = l.inFlight.Acquire(listKey)
		fs.Collapsed = !ok
	case l.inFlight.Has(listKey):
		fs.Skip(fetchstatus.SkipReasonInFlight)
		fetch = false
	case l.tracker.ShouldDebounce(listKey, l.inFlight):
		fs.Skip(fetchstatus.SkipReasonDebounced)
		fetch = false
	case l.loaded && l.tracker.IsFresh(listKey):
		fs.Hit()
		fetch = false
	default:
		if l.loaded {
			fs.Forward(fetchstatus.FwdReasonStale)
		} else {
			fs.Forward(fetchstatus.FwdReasonMiss)
		}
		guard, _ = l.inFlight.Acquire(listKey)
	}
	gen := p.generation
	inv := p.invalidated
	if fetch {
		l.loading++
	}
	p.mu.Unlock()

	if !fetch {
		log.Debug().Str("status", fs.String()).Msg("Load served")
		return nil
	}
	defer guard.Release()
	p.publish(RegionAll)

	raw, err := p.api.GetUsers(ctx)

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		log.Debug().Msg("Discarding list loaded before logout")
		return err
	}
	l.loading--
	if err != nil {
		l.err = err
	} else {
		now := p.now()
		l.store(profile.NormalizeList(raw), now)
		if inv != p.invalidated {
			l.tracker.Forget(listKey)
			fs.Detail("invalidated")
		} else {
			for id := range l.index {
				p.cachedAt[id] = now
			}
		}
		fs.Stored = true
	}
	count := len(l.records)
	p.mu.Unlock()
	p.publish(RegionAll)

	if err != nil {
		log.Warn().Err(err).Str("status", fs.String()).Msg("Could not load user list")
	} else {
		log.Debug().Str("status", fs.String()).Int("count", count).Msg("User list loaded")
	}
	if force {
		p.notifyResult(err, "Profiles refreshed")
	}
	return err
}

// Logout empties every region and the in-flight registries.
// Loads still running when Logout is called do not write their results.
func (p *ProfileCache) Logout() {
	p.mu.Lock()
	p.generation++
	p.own.reset()
	p.user.reset()
	p.visited.reset()
	p.all.reset()
	p.cachedAt = make(map[string]time.Time)
	p.invalidations = make(map[string]uint64)
	p.invalidated = 0
	p.mu.Unlock()

	p.log.Info().Msg("Cache cleared on logout")
	for _, r := range []Region{RegionOwn, RegionUser, RegionVisited, RegionAll} {
		p.publish(r)
	}
}

func (p *ProfileCache) OwnProfile() ProfileState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.own.state()
}

func (p *ProfileCache) UserProfile() ProfileState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user.state()
}

func (p *ProfileCache) VisitedProfile() ProfileState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visited.state()
}

func (p *ProfileCache) AllProfiles() ListState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.all.state()
}

// CachedAt returns when id was last loaded by any region.
func (p *ProfileCache) CachedAt(id string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	at, ok := p.cachedAt[id]
	return at, ok
}

// InFlight returns the number of registered requests across all regions.
func (p *ProfileCache) InFlight() int {
	return p.own.inFlight.Len() + p.user.inFlight.Len() + p.visited.inFlight.Len() + p.all.inFlight.Len()
}

func (p *ProfileCache) profileRegion(name Region) (*profileRegion, bool) {
	switch name {
	case RegionOwn:
		return p.own, true
	case RegionUser:
		return p.user, true
	case RegionVisited:
		return p.visited, true
	}
	return nil, false
}

func (p *ProfileCache) notifyResult(err error, success string) {
	if err != nil {
		p.notifier.Notify(notify.New(notify.KindError, errorMessage(err), p.now()))
		return
	}
	p.notifier.Notify(notify.New(notify.KindSuccess, success, p.now()))
}

// errorMessage returns the user-facing message of a load or write failure.
func errorMessage(err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return apiclient.MessageUnexpected
}
