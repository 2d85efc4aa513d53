package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	FullName     string    `json:"full_name,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// PublicProfile is the subset of an account other users may see,
// e.g. when an incoming call is enriched with the caller's info.
type PublicProfile struct {
	Id       int    `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type Message struct {
	Id         string         `json:"id"`
	SenderId   int            `json:"sender_id"`
	ReceiverId int            `json:"receiver_id"`
	Text       string         `json:"text,omitempty"`
	Image      string         `json:"image,omitempty"`
	Video      string         `json:"video,omitempty"`
	ReadBy     []int          `json:"read_by"`
	Reactions  map[int]string `json:"reactions,omitempty"`
	Edited     bool           `json:"edited"`
	Deleted    bool           `json:"deleted"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty"`
}

// Contact is a sidebar entry: a user the account has exchanged
// messages with, along with the most recent message between them.
type Contact struct {
	User        PublicProfile `json:"user"`
	LastMessage *Message      `json:"last_message,omitempty"`
}
