package domain

import "time"

// User is a local profile account. PasswordHash holds an argon2id hash; the
// plaintext password is never persisted.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
	Avatar       string    `json:"avatar,omitempty"`
	AvatarID     string    `json:"avatarId,omitempty"`
}

// MediaSlots implements MediaOwner.
func (u *User) MediaSlots() []MediaSlot {
	return []MediaSlot{
		{Name: "avatar", Kind: KindImage, Inline: &u.Avatar, Ref: &u.AvatarID},
	}
}

// UserPatch is a merge-patch for a User. Nil fields are left alone.
type UserPatch struct {
	Username *string `json:"username,omitempty" validate:"omitempty,notblank,max=64"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	// Avatar replaces the avatar with new inline media, or clears it when empty.
	Avatar *string `json:"avatar,omitempty"`
}

// Apply merges the patch into u.
func (p UserPatch) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
		u.AvatarID = ""
	}
}

// Session is the explicit authentication context threaded through
// operations that need an owning user.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	StartedAt time.Time `json:"startedAt"`
}

// Owns reports whether the session belongs to userID.
func (s *Session) Owns(userID string) bool {
	return s != nil && s.UserID != "" && s.UserID == userID
}
