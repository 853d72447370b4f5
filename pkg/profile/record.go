package profile

import "encoding/json"

// Record is the canonical profile representation held by the cache regions.
// Every collection is a non-nil slice once the record went through Normalize.
type Record struct {
	ID             string `json:"id"`
	DisplayName    string `json:"name"`
	Handle         string `json:"username"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Bio            string `json:"bio"`
	AvatarURL      string `json:"profilePicture"`
	FollowerCount  int    `json:"followers"`
	FollowingCount int    `json:"following"`

	Events                 []json.RawMessage `json:"userEvents"`
	Followers              []json.RawMessage `json:"userFollowers"`
	Following              []json.RawMessage `json:"userFollowing"`
	GuestLists             []json.RawMessage `json:"guestLists"`
	Reviews                []json.RawMessage `json:"userReviews"`
	Tickets                []json.RawMessage `json:"userTickets"`
	SavedEvents            []json.RawMessage `json:"savedEvents"`
	SavedReviews           []json.RawMessage `json:"savedReviews"`
	Bookings               []json.RawMessage `json:"userBookings"`
	PendingBookingRequests []json.RawMessage `json:"pendingBookingRequests"`
	LikedEvents            []json.RawMessage `json:"likedEvents"`
}

// collections returns pointers to the list-valued fields, in the order of collectionFields.
func (r *Record) collections() []*[]json.RawMessage {
	return []*[]json.RawMessage{
		&r.Events,
		&r.Followers,
		&r.Following,
		&r.GuestLists,
		&r.Reviews,
		&r.Tickets,
		&r.SavedEvents,
		&r.SavedReviews,
		&r.Bookings,
		&r.PendingBookingRequests,
		&r.LikedEvents,
	}
}

// Collection returns the collection stored under the given server field name.
// The second return value is false for unknown names.
func (r Record) Collection(field string) ([]json.RawMessage, bool) {
	for i, c := range r.collections() {
		if collectionFields[i] == field {
			return *c, true
		}
	}
	return nil, false
}

// WithoutCollections returns a copy of the record with every collection emptied.
// Bulk list members do not carry their collections, so records adopted from the
// list are shaped this way.
func (r Record) WithoutCollections() Record {
	for _, c := range r.collections() {
		*c = []json.RawMessage{}
	}
	return r
}

// Patch is the body of a profile update. Nil fields are not sent.
type Patch struct {
	DisplayName *string `json:"name,omitempty"`
	Handle      *string `json:"username,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	AvatarURL   *string `json:"profilePicture,omitempty"`
}

// Empty reports whether the patch would not change anything.
func (p Patch) Empty() bool {
	return p.DisplayName == nil &&
		p.Handle == nil &&
		p.Email == nil &&
		p.Phone == nil &&
		p.Bio == nil &&
		p.AvatarURL == nil
}
