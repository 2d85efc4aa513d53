package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/omkar9814/fullstack-chat-app/internal/config"
	"github.com/omkar9814/fullstack-chat-app/internal/database"
	"github.com/omkar9814/fullstack-chat-app/internal/server"
	"github.com/omkar9814/fullstack-chat-app/internal/stats"
	"github.com/omkar9814/fullstack-chat-app/internal/testutil"
	"github.com/omkar9814/fullstack-chat-app/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestApp(t *testing.T, db database.ChatRepository, cs *server.ChatServer) *ChatApp {
	return NewChatApp(http.NewServeMux(), testutil.TestLogger(t), cs, db, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})
}

func newTestServer(t *testing.T, db database.ChatRepository, su *stats.MockStatsUpdater) *server.ChatServer {
	su.On("RegisterMetric", mock.Anything).Times(5)

	cs, err := server.NewChatServer(testutil.TestLogger(t), db, su, time.Minute)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("failed to encode request body: %v", err)
	}
	return buf
}

func Test_healthCheck(t *testing.T) {
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo.On("Ping").Return(tc.mockErr).Once()
			app := newTestApp(t, mockRepo, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	t.Run("successfully creates a new account", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
			return p.Username == "newuser" &&
				p.EmailAddress == "newuser@example.com" &&
				p.PasswordHash != "password"
		})).Return(database.User{
			Id:           1,
			Username:     "newuser",
			EmailAddress: "newuser@example.com",
			PasswordHash: "hashedpassword",
		}, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, RegisterRequest{
			Username: "newuser",
			Email:    "newuser@example.com",
			Password: "password",
		}))
		app.createAccount(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

		var user types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user), "expected a user in the response")
		assert.Equal(t, 1, user.Id, "expected the created user's id")
		assert.NotContains(t, rr.Body.String(), "hashedpassword", "expected the password hash to be omitted")
	})

	t.Run("fails with invalid json body", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString("invalid json"))
		app.createAccount(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})

	t.Run("fails with missing fields", func(t *testing.T) {
		for name, body := range map[string]RegisterRequest{
			"missing username": {Email: "a@example.com", Password: "password"},
			"missing email":    {Username: "newuser", Password: "password"},
			"missing password": {Username: "newuser", Email: "a@example.com"},
		} {
			t.Run(name, func(t *testing.T) {
				app := newTestApp(t, &database.MockChatRepository{}, nil)
				rr := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, body))
				app.createAccount(rr, req)

				assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
			})
		}
	})

	t.Run("fails when the database rejects the account", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("CreateAccount", mock.Anything).Return(database.User{}, errors.New("duplicate email")).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, RegisterRequest{
			Username: "newuser",
			Email:    "newuser@example.com",
			Password: "password",
		}))
		app.createAccount(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
	})
}

func TestLoginHandler(t *testing.T) {
	hash, err := hashPassword("password")
	assert.NoError(t, err, "expected no error hashing test password")

	storedUser := database.User{
		Id:           1,
		Username:     "user",
		EmailAddress: "user@example.com",
		PasswordHash: hash,
	}

	t.Run("successful login sets a session cookie", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAccountByEmail", "user@example.com").Return(storedUser, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, LoginRequest{
			Email:    "user@example.com",
			Password: "password",
		}))
		app.login(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		cookie := findCookie(rr, tokenCookieKey)
		assert.NotNil(t, cookie, "expected a session cookie to be set")

		userId, err := app.extractUserIdFromToken(cookie.Value)
		assert.NoError(t, err, "expected the cookie to hold a valid token")
		assert.Equal(t, 1, userId, "expected the token to carry the user's id")
	})

	t.Run("wrong password", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAccountByEmail", "user@example.com").Return(storedUser, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, LoginRequest{
			Email:    "user@example.com",
			Password: "wrong",
		}))
		app.login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code to be 401")
		assert.Nil(t, findCookie(rr, tokenCookieKey), "expected no session cookie")
	})

	t.Run("unknown email", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAccountByEmail", "ghost@example.com").Return(database.User{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, LoginRequest{
			Email:    "ghost@example.com",
			Password: "password",
		}))
		app.login(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code to be 404")
	})
}

func TestSessionHandler(t *testing.T) {
	t.Run("returns the authenticated user", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAccountById", 1).Return(database.User{
			Id:       1,
			Username: "user",
		}, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.session(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var user types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user), "expected a user in the response")
		assert.Equal(t, "user", user.Username, "expected the authenticated user's name")
	})

	t.Run("no user id in context", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		app.session(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code to be 401")
	})
}

func TestGetConversationHandler(t *testing.T) {
	t.Run("returns the exchanged messages", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetConversation", 1, 2).Return([]database.Message{
			{ExternalId: "msg-1", SenderId: 1, ReceiverId: 2, Text: "hi"},
			{ExternalId: "msg-2", SenderId: 2, ReceiverId: 1, Text: "hey"},
		}, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages/2", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		req.SetPathValue("id", "2")
		app.getConversation(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var messages []types.Message
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&messages), "expected messages in the response")
		assert.Len(t, messages, 2, "expected both messages")
		assert.Equal(t, "msg-1", messages[0].Id, "expected messages keyed by external id")
	})

	t.Run("non-numeric peer id", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages/abc", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		req.SetPathValue("id", "abc")
		app.getConversation(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})
}

func TestGetContactsHandler(t *testing.T) {
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("GetContacts", 1).Return([]database.Contact{
		{
			User:        database.User{Id: 2, Username: "peer"},
			LastMessage: &database.Message{ExternalId: "msg-1", SenderId: 2, ReceiverId: 1, Text: "hi"},
		},
		{
			User: database.User{Id: 3, Username: "quiet"},
		},
	}, nil).Once()

	app := newTestApp(t, mockRepo, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/messages/users", nil)
	req = req.WithContext(WithUserId(req.Context(), 1))
	app.getContacts(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

	var contacts []types.Contact
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&contacts), "expected contacts in the response")
	assert.Len(t, contacts, 2, "expected both contacts")
	assert.Equal(t, "peer", contacts[0].User.Username, "expected the contact's profile")
	assert.Equal(t, "msg-1", contacts[0].LastMessage.Id, "expected the most recent message")
	assert.Nil(t, contacts[1].LastMessage, "expected no last message for an empty history")
}

func TestSendMessageHandler(t *testing.T) {
	t.Run("persists and returns the message", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		su.On("Incr", server.StatMessagesSent).Once()
		defer su.AssertExpectations(t)

		cs := newTestServer(t, mockRepo, su)

		mockRepo.On("GetAccountById", 2).Return(database.User{Id: 2}, nil).Once()
		mockRepo.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.SenderId == 1 && p.ReceiverId == 2 && p.Text == "hello"
		})).Return(database.Message{
			ExternalId: "msg-1",
			SenderId:   1,
			ReceiverId: 2,
			Text:       "hello",
		}, nil).Once()

		app := newTestApp(t, mockRepo, cs)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/messages/send/2", jsonBody(t, SendMessageRequest{Text: "hello"}))
		req = req.WithContext(WithUserId(req.Context(), 1))
		req.SetPathValue("id", "2")
		app.sendMessage(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

		var msg types.Message
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&msg), "expected the message in the response")
		assert.Equal(t, "msg-1", msg.Id, "expected the stored message's external id")
	})

	t.Run("empty message body", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/messages/send/2", jsonBody(t, SendMessageRequest{}))
		req = req.WithContext(WithUserId(req.Context(), 1))
		req.SetPathValue("id", "2")
		app.sendMessage(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})

	t.Run("unknown receiver", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		cs := newTestServer(t, mockRepo, &stats.MockStatsUpdater{})

		mockRepo.On("GetAccountById", 99).Return(database.User{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, cs)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/messages/send/99", jsonBody(t, SendMessageRequest{Text: "hello"}))
		req = req.WithContext(WithUserId(req.Context(), 1))
		req.SetPathValue("id", "99")
		app.sendMessage(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code to be 404")
	})
}

func TestEditMessageHandler(t *testing.T) {
	t.Run("non-sender is forbidden", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		cs := newTestServer(t, mockRepo, &stats.MockStatsUpdater{})

		mockRepo.On("GetMessageByExternalId", "msg-1").Return(database.Message{
			ExternalId: "msg-1",
			SenderId:   1,
			ReceiverId: 2,
		}, nil).Once()

		app := newTestApp(t, mockRepo, cs)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPatch, "/api/messages/msg-1", jsonBody(t, EditMessageRequest{Text: "hijacked"}))
		req = req.WithContext(WithUserId(req.Context(), 2))
		req.SetPathValue("id", "msg-1")
		app.editMessage(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code to be 403")
	})

	t.Run("unknown message", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		cs := newTestServer(t, mockRepo, &stats.MockStatsUpdater{})

		mockRepo.On("GetMessageByExternalId", "gone").Return(database.Message{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, cs)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPatch, "/api/messages/gone", jsonBody(t, EditMessageRequest{Text: "text"}))
		req = req.WithContext(WithUserId(req.Context(), 1))
		req.SetPathValue("id", "gone")
		app.editMessage(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code to be 404")
	})
}

func TestAccountHandler(t *testing.T) {
	t.Run("rejects unsupported methods", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/account", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.account(rr, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, "expected status code to be 405")
	})

	t.Run("updates profile fields", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAccountById", 1).Return(database.User{
			Id:           1,
			Username:     "user",
			PasswordHash: "oldhash",
		}, nil).Once()
		mockRepo.On("UpdateAccount", mock.MatchedBy(func(p database.UpdateAccountParams) bool {
			// username and password hash carry over when not supplied
			return p.UserId == 1 && p.Username == "user" &&
				p.FullName == "New Name" && p.PasswordHash == "oldhash"
		})).Return(database.User{
			Id:       1,
			Username: "user",
			FullName: "New Name",
		}, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/account", jsonBody(t, UpdateAccountRequest{
			FullName: "New Name",
		}))
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.account(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var user types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user), "expected the updated user in the response")
		assert.Equal(t, "New Name", user.FullName, "expected the new full name")
	})
}
