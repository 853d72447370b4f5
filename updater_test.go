package profilecache

import (
	"context"
	"errors"
	"testing"

	"github.com/always-cache/profile-cache/notify"
	"github.com/always-cache/profile-cache/pkg/profile"
)

func name(s string) *string {
	return &s
}

func TestUpdateProfileResyncs(t *testing.T) {
	api := newMockAPI(t)
	api.set("u1", u1Payload)
	rec := &recorder{}
	pc := newTestCache(t, api, newFakeClock(), rec)
	ctx := context.Background()

	pc.LoadOwnProfile(ctx, "u1", false)
	if err := pc.UpdateProfile(ctx, "", profile.Patch{DisplayName: name("Grace")}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if n := api.count("PUT /updateprofile/u1"); n != 1 {
		t.Fatalf("Update sent %d times", n)
	}
	if n := api.count(getU1); n != 2 {
		t.Fatalf("Profile requested %d times", n)
	}
	if state := pc.OwnProfile(); state.Record.DisplayName != "Grace" {
		t.Fatalf("Own record is %+v", state.Record)
	}
	notes := rec.all()
	if len(notes) != 1 || notes[0].Kind != notify.KindSuccess || notes[0].Message != "Profile updated" {
		t.Fatalf("Notifications are %+v", notes)
	}
}

func TestUpdateProfileFailure(t *testing.T) {
	api := newMockAPI(t)
	api.set("u1", u1Payload)
	api.fail("PUT /updateprofile/u1", 400, `{"error":"Name taken"}`)
	rec := &recorder{}
	pc := newTestCache(t, api, newFakeClock(), rec)
	ctx := context.Background()

	pc.LoadOwnProfile(ctx, "u1", false)
	if err := pc.UpdateProfile(ctx, "u1", profile.Patch{DisplayName: name("Grace")}); err == nil {
		t.Fatal("Update did not fail")
	}

	state := pc.OwnProfile()
	if state.Record.DisplayName != "Ada" || state.ErrorMessage != "Name taken" {
		t.Fatalf("Own state is %+v", state)
	}
	if n := api.count(getU1); n != 1 {
		t.Fatalf("Profile requested %d times", n)
	}
	notes := rec.all()
	if len(notes) != 1 || notes[0].Kind != notify.KindError || notes[0].Message != "Name taken" {
		t.Fatalf("Notifications are %+v", notes)
	}
}

func TestUpdateProfileArguments(t *testing.T) {
	api := newMockAPI(t)
	pc := newTestCache(t, api, newFakeClock(), nil)
	ctx := context.Background()

	if err := pc.UpdateProfile(ctx, "u1", profile.Patch{}); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("Error is %v", err)
	}
	if err := pc.UpdateProfile(ctx, "", profile.Patch{Bio: name("hi")}); !errors.Is(err, ErrNoUserID) {
		t.Fatalf("Error is %v", err)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	api := newMockAPI(t)
	api.set("u1", u1Payload)
	api.setList(`[{"id":"u1"}]`)
	pc := newTestCache(t, api, newFakeClock(), nil)
	ctx := context.Background()

	pc.LoadVisitedProfile(ctx, "u1", false)
	pc.LoadOwnProfile(ctx, "u1", false)
	pc.LoadAllProfiles(ctx, false)
	pc.Invalidate("u1")

	if _, ok := pc.CachedAt("u1"); ok {
		t.Fatal("Shared timestamp kept")
	}
	pc.LoadVisitedProfile(ctx, "u1", false)
	pc.LoadOwnProfile(ctx, "u1", false)
	pc.LoadAllProfiles(ctx, false)
	if n := api.count(getU1); n != 4 {
		t.Fatalf("Profile requested %d times", n)
	}
	if n := api.count(getAll); n != 2 {
		t.Fatalf("List requested %d times", n)
	}
	if pc.VisitedProfile().Record == nil {
		t.Fatal("Invalidated record dropped")
	}
}

func TestInvalidateDuringLoadLeavesRecordStale(t *testing.T) {
	api := newMockAPI(t)
	api.set("u2", `{"userProfile":{"id":"u2","followers":0}}`)
	entered, release := api.block("u2")
	defer release()
	pc := newTestCache(t, api, newFakeClock(), nil)
	ctx := context.Background()

	done := make(chan error)
	go func() {
		done <- pc.LoadVisitedProfile(ctx, "u2", false)
	}()
	<-entered
	pc.Invalidate("u2")
	release()
	if err := <-done; err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if pc.VisitedProfile().Record == nil {
		t.Fatal("Loaded record dropped")
	}
	if _, ok := pc.CachedAt("u2"); ok {
		t.Fatal("Record loaded across an invalidation has a shared timestamp")
	}
	api.set("u2", `{"userProfile":{"id":"u2","followers":1}}`)
	pc.LoadVisitedProfile(ctx, "u2", false)
	if n := api.count(getU2); n != 2 {
		t.Fatalf("Profile requested %d times", n)
	}
	if state := pc.VisitedProfile(); state.Record.FollowerCount != 1 {
		t.Fatalf("Visited record is %+v", state.Record)
	}
}

func TestFollowInvalidatesBoth(t *testing.T) {
	api := newMockAPI(t)
	api.set("u1", u1Payload)
	api.set("u2", `{"userProfile":{"id":"u2","followers":0}}`)
	rec := &recorder{}
	pc := newTestCache(t, api, newFakeClock(), rec)
	ctx := context.Background()

	pc.LoadOwnProfile(ctx, "u1", false)
	pc.LoadVisitedProfile(ctx, "u2", false)
	if err := pc.Follow(ctx, "u1", "u2"); err != nil {
		t.Fatalf("Follow failed: %v", err)
	}
	if body := api.body("POST /follow/u2"); body != `{"followerId":"u1"}` {
		t.Fatalf("Follow body is %s", body)
	}

	pc.LoadOwnProfile(ctx, "u1", false)
	pc.LoadVisitedProfile(ctx, "u2", false)
	if api.count(getU1) != 2 || api.count(getU2) != 2 {
		t.Fatalf("Profiles requested %d and %d times", api.count(getU1), api.count(getU2))
	}
	notes := rec.all()
	if len(notes) != 1 || notes[0].Message != "User followed" {
		t.Fatalf("Notifications are %+v", notes)
	}
}

func TestActionFailure(t *testing.T) {
	api := newMockAPI(t)
	api.set("u2", `{"userProfile":{"id":"u2"}}`)
	api.fail("POST /reviews/", 422, `{"message":"Rating out of range"}`)
	rec := &recorder{}
	pc := newTestCache(t, api, newFakeClock(), rec)
	ctx := context.Background()

	pc.LoadVisitedProfile(ctx, "u2", false)
	err := pc.PostReview(ctx, Review{AuthorID: "u1", SubjectID: "u2", Rating: 9})
	if err == nil {
		t.Fatal("Review did not fail")
	}
	notes := rec.all()
	if len(notes) != 1 || notes[0].Kind != notify.KindError || notes[0].Message != "Rating out of range" {
		t.Fatalf("Notifications are %+v", notes)
	}
	if _, ok := pc.CachedAt("u2"); !ok {
		t.Fatal("Failed action invalidated the profile")
	}
}

func TestActionEndpoints(t *testing.T) {
	api := newMockAPI(t)
	rec := &recorder{}
	pc := newTestCache(t, api, newFakeClock(), rec)
	ctx := context.Background()

	booking := BookingRequest{RequesterID: "u1", FreelancerID: "u2"}
	actions := map[string]func() error{
		"POST /unfollow/u2":         func() error { return pc.Unfollow(ctx, "u1", "u2") },
		"POST /bookings/":           func() error { return pc.RequestBooking(ctx, booking) },
		"PUT /bookings/b1":          func() error { return pc.RespondToBooking(ctx, "b1", "u2", "u1", true) },
		"POST /events/e1/guestlist": func() error { return pc.AddGuest(ctx, "e1", "u1", "u2") },
		"POST /events/e1/tickets":   func() error { return pc.BuyTicket(ctx, "e1", "u1") },
	}
	for key, action := range actions {
		if err := action(); err != nil {
			t.Fatalf("%s failed: %v", key, err)
		}
		if n := api.count(key); n != 1 {
			t.Fatalf("%s sent %d times", key, n)
		}
	}
	if body := api.body("PUT /bookings/b1"); body != `{"status":"accepted"}` {
		t.Fatalf("Booking response body is %s", body)
	}
	if n := len(rec.all()); n != len(actions) {
		t.Fatalf("%d notifications for %d actions", n, len(actions))
	}
}
