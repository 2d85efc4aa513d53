package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const messageColumns = "id, external_id, sender_id, receiver_id, text, image, video, read_by, reactions, edited, deleted, created_at, updated_at"

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, full_name, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, username, email, full_name, avatar",
		params.Username,
		params.EmailAddress,
		params.FullName,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.FullName,
		&u.Avatar,
	)

	return u, err
}

func (db *PgChatRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, full_name = $3, avatar = $4, password_hash = $5, updated_at = $6 "+
			"WHERE id = $1 RETURNING id, username, email, full_name, avatar, created_at, updated_at",
		params.UserId,
		params.Username,
		params.FullName,
		params.Avatar,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.FullName,
		&u.Avatar,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, full_name, avatar, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.FullName,
		&user.Avatar,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, full_name, avatar, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.FullName,
		&user.Avatar,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgChatRepository) GetPublicProfile(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, full_name, avatar FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.FullName,
		&user.Avatar,
	)

	return user, err
}

func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRow(
		"INSERT INTO messages (external_id, sender_id, receiver_id, text, image, video, read_by, created_at, updated_at) "+
			"VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $8) "+
			"RETURNING "+messageColumns,
		params.ExternalId,
		params.SenderId,
		params.ReceiverId,
		params.Text,
		params.Image,
		params.Video,
		pq.Array([]int64{int64(params.SenderId)}),
		time.Now().UTC(),
	)

	return scanMessage(row)
}

func (db *PgChatRepository) GetMessageByExternalId(externalId string) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	return scanMessage(row)
}

func (db *PgChatRepository) UpdateMessage(msg Message) (Message, error) {
	reactions, err := json.Marshal(msg.Reactions)
	if err != nil {
		return Message{}, fmt.Errorf("marshal reactions: %w", err)
	}

	readBy := make([]int64, len(msg.ReadBy))
	for i, id := range msg.ReadBy {
		readBy[i] = int64(id)
	}

	row := db.conn.QueryRow(
		"UPDATE messages SET text = NULLIF($2, ''), image = NULLIF($3, ''), video = NULLIF($4, ''), "+
			"read_by = $5, reactions = $6, edited = $7, deleted = $8, updated_at = $9 "+
			"WHERE id = $1 RETURNING "+messageColumns,
		msg.Id,
		msg.Text,
		msg.Image,
		msg.Video,
		pq.Array(readBy),
		reactions,
		msg.Edited,
		msg.Deleted,
		time.Now().UTC(),
	)

	return scanMessage(row)
}

func (db *PgChatRepository) GetConversation(accountId, peerId int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1) "+
			"ORDER BY created_at ASC",
		accountId,
		peerId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgChatRepository) GetContacts(accountId int) ([]Contact, error) {
	rows, err := db.conn.Query(
		`SELECT
			a.id, a.username, a.full_name, a.avatar,
			m.id, m.external_id, m.sender_id, m.receiver_id, m.text, m.image, m.video,
			m.read_by, m.reactions, m.edited, m.deleted, m.created_at, m.updated_at
		FROM accounts a
		LEFT JOIN LATERAL (
			SELECT * FROM messages
			WHERE (sender_id = $1 AND receiver_id = a.id)
				OR (sender_id = a.id AND receiver_id = $1)
			ORDER BY created_at DESC
			LIMIT 1
		) m ON TRUE
		WHERE a.id <> $1
		ORDER BY m.created_at DESC NULLS LAST, a.username ASC`,
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		var (
			msgId                  sql.NullInt64
			externalId             sql.NullString
			senderId, receiverId   sql.NullInt64
			text, image, video     sql.NullString
			readBy                 []int64
			reactions              []byte
			edited, deleted        sql.NullBool
			createdAt, updatedAt   sql.NullTime
		)

		if err := rows.Scan(
			&c.User.Id,
			&c.User.Username,
			&c.User.FullName,
			&c.User.Avatar,
			&msgId,
			&externalId,
			&senderId,
			&receiverId,
			&text,
			&image,
			&video,
			pq.Array(&readBy),
			&reactions,
			&edited,
			&deleted,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, err
		}

		if msgId.Valid {
			msg := Message{
				Id:         int(msgId.Int64),
				ExternalId: externalId.String,
				SenderId:   int(senderId.Int64),
				ReceiverId: int(receiverId.Int64),
				Text:       text.String,
				Image:      image.String,
				Video:      video.String,
				Edited:     edited.Bool,
				Deleted:    deleted.Bool,
				CreatedAt:  createdAt.Time,
				UpdatedAt:  updatedAt.Time,
			}
			msg.ReadBy = make([]int, len(readBy))
			for i, id := range readBy {
				msg.ReadBy[i] = int(id)
			}
			if len(reactions) > 0 {
				if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
					return nil, fmt.Errorf("unmarshal reactions: %w", err)
				}
			}
			c.LastMessage = &msg
		}

		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var msg Message
	var text, image, video sql.NullString
	var readBy []int64
	var reactions []byte

	err := row.Scan(
		&msg.Id,
		&msg.ExternalId,
		&msg.SenderId,
		&msg.ReceiverId,
		&text,
		&image,
		&video,
		pq.Array(&readBy),
		&reactions,
		&msg.Edited,
		&msg.Deleted,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	msg.Text = text.String
	msg.Image = image.String
	msg.Video = video.String

	msg.ReadBy = make([]int, len(readBy))
	for i, id := range readBy {
		msg.ReadBy[i] = int(id)
	}

	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
			return Message{}, fmt.Errorf("unmarshal reactions: %w", err)
		}
	}

	return msg, nil
}
