package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	FullName     string
	Avatar       string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Message struct {
	Id         int
	ExternalId string
	SenderId   int
	ReceiverId int
	Text       string
	Image      string
	Video      string
	ReadBy     []int
	Reactions  map[int]string
	Edited     bool
	Deleted    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Contact pairs a user with the most recent message exchanged
// with the requesting account. LastMessage is nil when the two
// users have no message history yet.
type Contact struct {
	User        User
	LastMessage *Message
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	FullName     string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	FullName     string
	Avatar       string
	PasswordHash string
}

type CreateMessageParams struct {
	ExternalId string
	SenderId   int
	ReceiverId int
	Text       string
	Image      string
	Video      string
}
