package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campus-messaging/internal/logger"
	"campus-messaging/internal/media"
	"campus-messaging/internal/messaging"
	"campus-messaging/internal/mocks"
	"campus-messaging/internal/models"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser("u1"))
	r.GET("/conversations/:id/messages", handler.GetMessages)
	r.POST("/conversations/:id/messages", handler.PostMessage)
	r.POST("/messages/:id/reactions", handler.AddReaction)
	r.DELETE("/messages/:id/reactions", handler.RemoveReaction)
	r.POST("/messages/:id/read", handler.MarkAsRead)
	return r
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, data := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		h.Set("Content-Type", "application/octet-stream")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestGetMessagesSuccess(t *testing.T) {
	directory := new(mocks.DirectoryServiceMock)
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(directory, messages, logger.Nop()))

	directory.On("IsMember", mock.Anything, "c1").Return(true, nil).Once()
	messages.On("History", mock.Anything, "c1").Return([]models.Message{{ID: "m1", Content: "hi"}}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/c1/messages", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "hi", resp["messages"][0].Content)
	messages.AssertExpectations(t)
}

func TestGetMessagesNotMember(t *testing.T) {
	directory := new(mocks.DirectoryServiceMock)
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(directory, messages, logger.Nop()))

	directory.On("IsMember", mock.Anything, "c1").Return(false, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/c1/messages", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
	messages.AssertNotCalled(t, "History", mock.Anything, mock.Anything)
}

func TestPostMessageMultipart(t *testing.T) {
	directory := new(mocks.DirectoryServiceMock)
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(directory, messages, logger.Nop()))

	directory.On("IsMember", mock.Anything, "c1").Return(true, nil).Once()
	messages.On("Send", mock.Anything, mock.MatchedBy(func(req messaging.SendRequest) bool {
		return req.ConversationID == "c1" &&
			req.Content == "see attached" &&
			req.ClientToken != nil && *req.ClientToken == "tok" &&
			req.ReplyTo == nil &&
			len(req.Files) == 1 && req.Files[0].Name == "notes.pdf" && req.Files[0].Size == 4
	})).Return(models.Message{ID: "m1"}, nil).Once()

	body, ct := multipartBody(t,
		map[string]string{"content": "see attached", "client_token": "tok"},
		map[string][]byte{"notes.pdf": []byte("%PDF")},
	)
	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/messages", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	messages.AssertExpectations(t)
}

func TestPostMessageValidationAndPartialFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"oversized file", &messaging.Error{Kind: messaging.KindValidation, Err: &media.ValidationError{File: "big.mp4", Reason: "too large"}}, http.StatusBadRequest},
		{"upload failed", &messaging.Error{Kind: messaging.KindPartialFailure, Msg: "upload b.png"}, http.StatusMultiStatus},
		{"not signed in", messaging.ErrUnauthenticated, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			directory := new(mocks.DirectoryServiceMock)
			messages := new(mocks.MessageServiceMock)
			router := setupMessageRouter(NewMessageHandler(directory, messages, logger.Nop()))

			directory.On("IsMember", mock.Anything, "c1").Return(true, nil).Once()
			messages.On("Send", mock.Anything, mock.Anything).Return(models.Message{ID: "m1"}, tt.err).Once()

			body, ct := multipartBody(t, map[string]string{"content": "x"}, nil)
			req := httptest.NewRequest(http.MethodPost, "/conversations/c1/messages", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAddReaction(t *testing.T) {
	directory := new(mocks.DirectoryServiceMock)
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(directory, messages, logger.Nop()))

	messages.On("Message", mock.Anything, "m1").Return(models.Message{ID: "m1", ConversationID: "c1"}, nil).Once()
	directory.On("IsMember", mock.Anything, "c1").Return(true, nil).Once()
	messages.On("AddReaction", mock.Anything, "m1", "👍").Return(models.Reaction{ID: "r1", Emoji: "👍"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/m1/reactions", bytes.NewBufferString(`{"emoji":"👍"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	messages.AssertExpectations(t)
}

func TestRemoveReaction(t *testing.T) {
	directory := new(mocks.DirectoryServiceMock)
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(directory, messages, logger.Nop()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/messages/m1/reactions", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	messages.On("Message", mock.Anything, "m1").Return(models.Message{ID: "m1", ConversationID: "c1"}, nil).Once()
	directory.On("IsMember", mock.Anything, "c1").Return(true, nil).Once()
	messages.On("RemoveReaction", mock.Anything, "m1", "🎉").Return(nil).Once()

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/messages/m1/reactions?emoji=%F0%9F%8E%89", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	messages.AssertExpectations(t)
}

func TestMarkMessageReadUnknownMessage(t *testing.T) {
	directory := new(mocks.DirectoryServiceMock)
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(directory, messages, logger.Nop()))

	messages.On("Message", mock.Anything, "nope").Return(nil, &messaging.Error{Kind: messaging.KindNotFound, Msg: "message not found"}).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/messages/nope/read", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	messages.AssertNotCalled(t, "MarkAsRead", mock.Anything, mock.Anything)
}
