package models

import "time"

// User is a registered account. Only identity fields are read by the chat service.
type User struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Ref returns the public identity of the user.
func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

// UserRef is the identity snapshot embedded in messages and conversations.
type UserRef struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UnknownUser is used when a referenced account no longer resolves.
func UnknownUser(id string) UserRef {
	return UserRef{ID: id, Name: "Unknown", Email: "unknown@localhost"}
}
