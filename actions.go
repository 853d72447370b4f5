package profilecache

import (
	"context"
	"net/http"
	"net/url"

	"github.com/always-cache/profile-cache/notify"
)

// Action is a write request that changes data held in profiles,
// such as follower lists or bookings.
type Action struct {
	// Name used in logs.
	Name   string
	Method string
	// Path relative to the API base URL, starting with a slash.
	Path string
	// Body sent as JSON, may be nil.
	Body any
	// Message notified on success. Nothing is notified if empty.
	Success string
	// Ids whose cached profiles are invalidated on success.
	Invalidate []string
}

// Perform sends the action and notifies its outcome.
// On success the profiles named by the action are invalidated.
func (p *ProfileCache) Perform(ctx context.Context, a Action) ([]byte, error) {
	log := p.log.With().Str("action", a.Name).Str("method", a.Method).Str("path", a.Path).Logger()

	body, err := p.api.Send(ctx, a.Method, a.Path, a.Body)
	if err != nil {
		log.Warn().Err(err).Msg("Action failed")
		p.notifier.Notify(notify.New(notify.KindError, errorMessage(err), p.now()))
		return nil, err
	}
	log.Debug().Strs("invalidate", a.Invalidate).Msg("Action done")

	for _, id := range a.Invalidate {
		if id != "" {
			p.Invalidate(id)
		}
	}
	if a.Success != "" {
		p.notifier.Notify(notify.New(notify.KindSuccess, a.Success, p.now()))
	}
	return body, nil
}

// Follow makes userID follow targetID.
func (p *ProfileCache) Follow(ctx context.Context, userID, targetID string) error {
	_, err := p.Perform(ctx, Action{
		Name:       "follow",
		Method:     http.MethodPost,
		Path:       "/follow/" + url.PathEscape(targetID),
		Body:       map[string]string{"followerId": userID},
		Success:    "User followed",
		Invalidate: []string{userID, targetID},
	})
	return err
}

// Unfollow makes userID stop following targetID.
func (p *ProfileCache) Unfollow(ctx context.Context, userID, targetID string) error {
	_, err := p.Perform(ctx, Action{
		Name:       "unfollow",
		Method:     http.MethodPost,
		Path:       "/unfollow/" + url.PathEscape(targetID),
		Body:       map[string]string{"followerId": userID},
		Success:    "User unfollowed",
		Invalidate: []string{userID, targetID},
	})
	return err
}

type BookingRequest struct {
	RequesterID  string `json:"requesterId"`
	FreelancerID string `json:"freelancerId"`
	EventID      string `json:"eventId,omitempty"`
	Date         string `json:"date,omitempty"`
	Message      string `json:"message,omitempty"`
}

// RequestBooking asks a freelancer for a booking.
func (p *ProfileCache) RequestBooking(ctx context.Context, req BookingRequest) error {
	_, err := p.Perform(ctx, Action{
		Name:       "request-booking",
		Method:     http.MethodPost,
		Path:       "/bookings/",
		Body:       req,
		Success:    "Booking request sent",
		Invalidate: []string{req.RequesterID, req.FreelancerID},
	})
	return err
}

// RespondToBooking accepts or declines a booking request.
func (p *ProfileCache) RespondToBooking(ctx context.Context, bookingID, freelancerID, requesterID string, accept bool) error {
	status, success := "declined", "Booking declined"
	if accept {
		status, success = "accepted", "Booking accepted"
	}
	_, err := p.Perform(ctx, Action{
		Name:       "respond-booking",
		Method:     http.MethodPut,
		Path:       "/bookings/" + url.PathEscape(bookingID),
		Body:       map[string]string{"status": status},
		Success:    success,
		Invalidate: []string{freelancerID, requesterID},
	})
	return err
}

// AddGuest puts guestID on the guest list of the event hosted by hostID.
func (p *ProfileCache) AddGuest(ctx context.Context, eventID, hostID, guestID string) error {
	_, err := p.Perform(ctx, Action{
		Name:       "add-guest",
		Method:     http.MethodPost,
		Path:       "/events/" + url.PathEscape(eventID) + "/guestlist",
		Body:       map[string]string{"userId": guestID},
		Success:    "Guest added",
		Invalidate: []string{hostID, guestID},
	})
	return err
}

// BuyTicket buys a ticket for the event.
func (p *ProfileCache) BuyTicket(ctx context.Context, eventID, buyerID string) error {
	_, err := p.Perform(ctx, Action{
		Name:       "buy-ticket",
		Method:     http.MethodPost,
		Path:       "/events/" + url.PathEscape(eventID) + "/tickets",
		Body:       map[string]string{"userId": buyerID},
		Success:    "Ticket purchased",
		Invalidate: []string{buyerID},
	})
	return err
}

type Review struct {
	AuthorID  string `json:"authorId"`
	SubjectID string `json:"subjectId"`
	EventID   string `json:"eventId,omitempty"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
}

// PostReview publishes a review of a user.
func (p *ProfileCache) PostReview(ctx context.Context, review Review) error {
	_, err := p.Perform(ctx, Action{
		Name:       "post-review",
		Method:     http.MethodPost,
		Path:       "/reviews/",
		Body:       review,
		Success:    "Review posted",
		Invalidate: []string{review.AuthorID, review.SubjectID},
	})
	return err
}
