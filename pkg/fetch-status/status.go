package fetchstatus

import "fmt"

type Status string

const (
	// The cached record was used, no request was made.
	StatusHit Status = "hit"
	// The load was forwarded to the network.
	StatusFwd Status = "fwd"
	// The load was dropped without touching the cache.
	StatusSkip Status = "skip"
)

type FwdReason string

const (
	// Nothing was cached for the region.
	FwdReasonMiss FwdReason = "miss"

	// The region holds a record, but for a different id.
	FwdReasonIDMiss FwdReason = "id-miss"

	// The region holds a record for the id, but it is older than the TTL.
	FwdReasonStale FwdReason = "stale"

	// The caller asked for a forced refresh.
	FwdReasonRequest FwdReason = "request"
)

type SkipReason string

const (
	// A request for the same id is outstanding.
	SkipReasonInFlight SkipReason = "in-flight"

	// The id was attempted within the debounce window.
	SkipReasonDebounced SkipReason = "debounced"
)

// FetchStatus describes how a load was handled, for logging.
type FetchStatus struct {
	Status     Status
	FwdReason  FwdReason
	SkipReason SkipReason
	// Stored is set when a forwarded load wrote a new record.
	Stored bool
	// Collapsed is set when a forwarded load found the id already registered.
	Collapsed bool
	detail    string
}

func (fs *FetchStatus) Hit() {
	fs.Status = StatusHit
}

func (fs *FetchStatus) Forward(reason FwdReason) {
	fs.Status = StatusFwd
	fs.FwdReason = reason
}

func (fs *FetchStatus) Skip(reason SkipReason) {
	fs.Status = StatusSkip
	fs.SkipReason = reason
}

func (fs *FetchStatus) Detail(detail string) {
	fs.detail = detail
}

func (fs FetchStatus) String() string {
	status := string(fs.Status)
	if fs.Status == StatusFwd && fs.FwdReason != "" {
		status = fmt.Sprintf("%s=%s", status, fs.FwdReason)
	}
	if fs.Status == StatusSkip && fs.SkipReason != "" {
		status = fmt.Sprintf("%s=%s", status, fs.SkipReason)
	}
	if fs.Stored {
		status += "; stored"
	}
	if fs.Collapsed {
		status += "; collapsed"
	}
	if fs.detail != "" {
		status += "; detail=" + fs.detail
	}
	return status
}
