package models

import "time"

// Room is either a private room between exactly two users or a named group room.
type Room struct {
	ID          int64     `db:"id" json:"id"`
	Slug        string    `db:"slug" json:"slug"`
	DisplayName *string   `db:"display_name" json:"display_name,omitempty"`
	IsPrivate   bool      `db:"is_private" json:"is_private"`
	AdminID     *int64    `db:"admin_id" json:"admin_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	MemberIDs   []int64   `db:"-" json:"member_ids"`
}

// IsAdmin reports whether userID owns the room. Private rooms have no admin.
func (r Room) IsAdmin(userID int64) bool {
	return r.AdminID != nil && *r.AdminID == userID
}

// HasMember reports whether userID is in the loaded member set.
func (r Room) HasMember(userID int64) bool {
	for _, id := range r.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Name returns the display name, or "" for private rooms.
func (r Room) Name() string {
	if r.DisplayName == nil {
		return ""
	}
	return *r.DisplayName
}

// OrderedPair returns the two user ids with the smaller first. Private rooms are keyed
// by this pair so that (a, b) and (b, a) address the same row.
func OrderedPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// PrivateRoomSummary is a private room as seen by one of its two members.
type PrivateRoomSummary struct {
	Slug    string    `json:"slug"`
	OtherID int64     `json:"other_user_id"`
	Created time.Time `json:"created_at"`
}

// RoomListing groups the rooms a user belongs to.
type RoomListing struct {
	Private []PrivateRoomSummary `json:"private"`
	Groups  []Room               `json:"groups"`
}
