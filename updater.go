package profilecache

import (
	"context"
	"errors"

	"github.com/always-cache/profile-cache/notify"
	"github.com/always-cache/profile-cache/pkg/profile"
)

// ErrEmptyPatch is returned by UpdateProfile for a patch without changes.
var ErrEmptyPatch = errors.New("nothing to update")

// UpdateProfile writes the patch and, once the write succeeded, reloads the own
// profile from the server. The cached record is never patched locally.
// An empty id updates the profile currently held by the own region.
func (p *ProfileCache) UpdateProfile(ctx context.Context, id string, patch profile.Patch) error {
	if patch.Empty() {
		return ErrEmptyPatch
	}
	p.mu.Lock()
	if id == "" {
		id = p.own.currentID
	}
	p.mu.Unlock()
	if id == "" {
		return ErrNoUserID
	}
	log := p.log.With().Str("region", string(RegionOwn)).Str("id", id).Logger()

	if err := p.api.UpdateProfile(ctx, id, patch); err != nil {
		log.Warn().Err(err).Msg("Could not update profile")
		p.mu.Lock()
		p.own.err = err
		p.mu.Unlock()
		p.publish(RegionOwn)
		p.notifier.Notify(notify.New(notify.KindError, errorMessage(err), p.now()))
		return err
	}
	log.Debug().Msg("Profile updated, reloading")

	err := p.loadProfile(ctx, p.own, id, loadOptions{force: true, quiet: true})
	p.notifier.Notify(notify.New(notify.KindSuccess, "Profile updated", p.now()))
	return err
}

// Invalidate makes every region holding id reload it on next access,
// bypassing both the TTL and the debounce window.
// If the user list contains id, the list is reloaded on next access too.
// Loads already in flight still store their result, but stale.
func (p *ProfileCache) Invalidate(id string) {
	changed := make([]Region, 0, 4)

	p.mu.Lock()
	p.invalidations[id]++
	p.invalidated++
	for _, r := range []*profileRegion{p.own, p.user, p.visited} {
		if r.holds(id) {
			changed = append(changed, r.name)
		}
		r.tracker.Forget(id)
	}
	delete(p.cachedAt, id)
	if _, ok := p.all.find(id); ok {
		p.all.tracker.Forget(listKey)
		changed = append(changed, RegionAll)
	}
	p.mu.Unlock()

	p.log.Debug().Str("id", id).Int("regions", len(changed)).Msg("Invalidated")
	for _, r := range changed {
		p.publish(r)
	}
}
