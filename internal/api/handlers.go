package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/omkar9814/fullstack-chat-app/internal/database"
	"github.com/omkar9814/fullstack-chat-app/internal/server"
	"github.com/omkar9814/fullstack-chat-app/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type UpdateAccountRequest struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Avatar   string `json:"avatar"`
	Password string `json:"password"`
}

type SendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
	Video string `json:"video"`
}

type EditMessageRequest struct {
	Text string `json:"text"`
}

type ReactRequest struct {
	Reaction string `json:"reaction"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Println(errResp.Error())
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func apiUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		FullName:     u.FullName,
		Avatar:       u.Avatar,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// opError maps a realtime-core operation error to an API error.
func opError(err error) *ApiError {
	switch {
	case errors.Is(err, server.ErrMessageNotFound), errors.Is(err, server.ErrUserNotFound):
		return NewNotFoundError()
	case errors.Is(err, server.ErrNotSender), errors.Is(err, server.ErrNotParticipant):
		return NewForbiddenError()
	default:
		return NewInternalServerError(err)
	}
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	newUser, err := s.db.CreateAccount(database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		FullName:     req.FullName,
		PasswordHash: pwdHash,
	})
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, apiUser(newUser))
}

func (s *ChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeError(w, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	token, err := s.createJwtForSession(dbUser.Id, defaultExp)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultExp))

	s.writeJson(w, http.StatusOK, apiUser(dbUser))
}

func (s *ChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *ChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		s.writeError(w, NewNotFoundError())
		return
	}

	s.writeJson(w, http.StatusOK, apiUser(user))
}

func (s *ChatApp) account(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := s.db.GetAccountById(userId)
		if err != nil {
			s.writeError(w, NewNotFoundError())
			return
		}

		s.writeJson(w, http.StatusOK, apiUser(user))
	case http.MethodPut:
		curUser, err := s.db.GetAccountById(userId)
		if err != nil {
			s.writeError(w, NewNotFoundError())
			return
		}

		var req UpdateAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, NewBadRequestError())
			return
		}

		pwdHash := curUser.PasswordHash
		if req.Password != "" {
			pwdHash, err = hashPassword(req.Password)
			if err != nil {
				s.writeError(w, NewInternalServerError(err))
				return
			}
		}

		if req.Username == "" {
			req.Username = curUser.Username
		}

		dbUser, err := s.db.UpdateAccount(database.UpdateAccountParams{
			UserId:       curUser.Id,
			Username:     req.Username,
			FullName:     req.FullName,
			Avatar:       req.Avatar,
			PasswordHash: pwdHash,
		})
		if err != nil {
			s.writeError(w, NewInternalServerError(err))
			return
		}

		s.writeJson(w, http.StatusOK, apiUser(dbUser))
	default:
		s.writeError(w, NewMethodNotAllowedError())
	}
}

func (s *ChatApp) getContacts(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	dbContacts, err := s.db.GetContacts(userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	contacts := make([]types.Contact, 0, len(dbContacts))
	for _, c := range dbContacts {
		contact := types.Contact{
			User: types.PublicProfile{
				Id:       c.User.Id,
				Username: c.User.Username,
				FullName: c.User.FullName,
				Avatar:   c.User.Avatar,
			},
		}
		if c.LastMessage != nil {
			msg := server.ApiMessage(*c.LastMessage)
			contact.LastMessage = &msg
		}
		contacts = append(contacts, contact)
	}

	s.writeJson(w, http.StatusOK, contacts)
}

func (s *ChatApp) getConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	peerId, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	dbMessages, err := s.db.GetConversation(userId, peerId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, msg := range dbMessages {
		messages = append(messages, server.ApiMessage(msg))
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *ChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	receiverId, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Text == "" && req.Image == "" && req.Video == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	msg, err := s.cs.SendMessage(userId, server.SendMessage{
		ReceiverId: receiverId,
		Text:       req.Text,
		Image:      req.Image,
		Video:      req.Video,
	})
	if err != nil {
		s.writeError(w, opError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *ChatApp) readMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	msg, err := s.cs.MarkMessageRead(userId, r.PathValue("id"))
	if err != nil {
		s.writeError(w, opError(err))
		return
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *ChatApp) reactToMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req ReactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Reaction == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	msg, err := s.cs.ReactToMessage(userId, r.PathValue("id"), req.Reaction)
	if err != nil {
		s.writeError(w, opError(err))
		return
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *ChatApp) editMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	msg, err := s.cs.EditMessage(userId, r.PathValue("id"), req.Text)
	if err != nil {
		s.writeError(w, opError(err))
		return
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *ChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	msg, err := s.cs.DeleteMessage(userId, r.PathValue("id"))
	if err != nil {
		s.writeError(w, opError(err))
		return
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetAccountById(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeError(w, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(apiUser(user), conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
