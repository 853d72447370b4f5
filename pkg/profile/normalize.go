package profile

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// profileField is the sub-object the server puts the profile scalars in.
// Collections sometimes end up nested in it as well.
const profileField = "userProfile"

// collectionFields are the server names of the list-valued fields of a profile.
var collectionFields = []string{
	"userEvents",
	"userFollowers",
	"userFollowing",
	"guestLists",
	"userReviews",
	"userTickets",
	"savedEvents",
	"savedReviews",
	"userBookings",
	"pendingBookingRequests",
	"likedEvents",
}

// CollectionFields returns the server names of the list-valued profile fields.
func CollectionFields() []string {
	fields := make([]string, len(collectionFields))
	copy(fields, collectionFields)
	return fields
}

// Normalize turns a raw profile payload into a Record.
// It never fails: a collection that is missing, null or not an array at the top level
// is taken from the profile sub-object if it is an array there, and is empty otherwise.
func Normalize(raw []byte) Record {
	root := gjson.ParseBytes(raw)
	if !gjson.ValidBytes(raw) || !root.IsObject() {
		return Record{}.WithoutCollections()
	}
	return fromResult(root)
}

// NormalizeList turns a raw bulk payload into records.
// The payload is either an array of profiles or an object holding one under `users`.
// Members that are not objects are skipped.
func NormalizeList(raw []byte) []Record {
	records := make([]Record, 0)
	if !gjson.ValidBytes(raw) {
		return records
	}
	list := gjson.ParseBytes(raw)
	if !list.IsArray() {
		list = list.Get("users")
	}
	if !list.IsArray() {
		return records
	}
	list.ForEach(func(_, member gjson.Result) bool {
		if member.IsObject() {
			records = append(records, fromResult(member))
		}
		return true
	})
	return records
}

func fromResult(root gjson.Result) Record {
	prof := root.Get(profileField)
	if !prof.IsObject() {
		// bulk list members are bare profiles
		prof = root
	}

	rec := Record{
		ID:             firstString(prof, "id", "_id", "userId"),
		DisplayName:    firstString(prof, "name", "displayName", "fullName"),
		Handle:         firstString(prof, "username", "handle"),
		Email:          firstString(prof, "email"),
		Phone:          firstString(prof, "phone", "phoneNumber"),
		Bio:            firstString(prof, "bio"),
		AvatarURL:      firstString(prof, "profilePicture", "avatar", "avatarUrl"),
		FollowerCount:  count(prof, "followers", "followersCount"),
		FollowingCount: count(prof, "following", "followingCount"),
	}
	for i, c := range rec.collections() {
		*c = collection(root, prof, collectionFields[i])
	}
	return rec
}

func collection(root, nested gjson.Result, field string) []json.RawMessage {
	if v := root.Get(field); v.IsArray() {
		return items(v)
	}
	if v := nested.Get(field); v.IsArray() {
		return items(v)
	}
	return []json.RawMessage{}
}

func items(list gjson.Result) []json.RawMessage {
	out := make([]json.RawMessage, 0)
	list.ForEach(func(_, item gjson.Result) bool {
		out = append(out, json.RawMessage(item.Raw))
		return true
	})
	return out
}

// firstString returns the first of the given keys holding a string or a number.
func firstString(obj gjson.Result, keys ...string) string {
	for _, key := range keys {
		v := obj.Get(key)
		if v.Type == gjson.String || v.Type == gjson.Number {
			return v.String()
		}
	}
	return ""
}

// count reads a counter that is either a number under key, the length of an array
// under key, or a number under fallback.
func count(obj gjson.Result, key, fallback string) int {
	v := obj.Get(key)
	switch {
	case v.Type == gjson.Number:
		return int(v.Int())
	case v.IsArray():
		return len(v.Array())
	}
	if v := obj.Get(fallback); v.Type == gjson.Number {
		return int(v.Int())
	}
	return 0
}
