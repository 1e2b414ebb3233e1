package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/chat"
	"messenger-service/internal/middleware"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

type fakePresence struct {
	online map[uuid.UUID]bool
}

func (p *fakePresence) IsOnline(userID uuid.UUID) bool {
	return p.online[userID]
}

func (p *fakePresence) OnlineStatus(userIDs []uuid.UUID) map[uuid.UUID]bool {
	status := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		status[id] = p.online[id]
	}
	return status
}

type nopPusher struct{}

func (nopPusher) Push(userID uuid.UUID, event any) bool { return false }

type chatHandlerDeps struct {
	chatRepo    *mocks.ChatRepositoryMock
	messageRepo *mocks.MessageRepositoryMock
	userRepo    *mocks.UserRepositoryMock
	typingRepo  *mocks.TypingRepositoryMock
	presence    *fakePresence
}

func newChatHandlerDeps() chatHandlerDeps {
	return chatHandlerDeps{
		chatRepo:    new(mocks.ChatRepositoryMock),
		messageRepo: new(mocks.MessageRepositoryMock),
		userRepo:    new(mocks.UserRepositoryMock),
		typingRepo:  new(mocks.TypingRepositoryMock),
		presence:    &fakePresence{online: map[uuid.UUID]bool{}},
	}
}

func (d chatHandlerDeps) handler() *ChatHandler {
	coordinator := chat.NewCoordinator(d.userRepo, d.chatRepo, d.messageRepo, d.typingRepo, nopPusher{})
	return NewChatHandler(d.chatRepo, d.messageRepo, d.userRepo, coordinator, d.presence, nil, "uploads", 10<<20)
}

func setupChatRouter(handler *ChatHandler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	})
	r.GET("/chat/chats", handler.ListChats)
	r.POST("/chat/new", handler.StartChat)
	r.DELETE("/chat/:chat_id", handler.DeleteChat)
	r.GET("/chat/messages/:user_id", handler.GetMessagesWithUser)
	r.POST("/chat/message", handler.PostMessage)
	r.POST("/chat/reply/:message_id", handler.ReplyToMessage)
	r.POST("/chat/read/:message_id", handler.MarkRead)
	r.GET("/chat/typing/:chat_id", handler.GetTyping)
	r.POST("/chat/typing/:chat_id", handler.SetTyping)
	r.GET("/chat/online/:user_id", handler.CheckOnline)
	r.GET("/chat/online-users", handler.OnlineUsers)
	return r
}

func TestListChatsSuccess(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	friendID := uuid.New()
	chatID := uuid.New()
	deps.presence.online[friendID] = true
	router := setupChatRouter(deps.handler(), userID)

	deps.chatRepo.On("ListChats", mock.Anything, userID).
		Return([]models.Chat{{ID: chatID, User1ID: userID, User2ID: friendID, UnreadCountUser1: 3}}, nil).Once()
	deps.userRepo.On("ListUsers", mock.Anything, []uuid.UUID{friendID}).
		Return([]models.User{{ID: friendID, Username: "bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats []models.ChatInfo `json:"chats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Chats, 1)
	assert.Equal(t, "bob", resp.Chats[0].OtherUser.Username)
	assert.True(t, resp.Chats[0].OtherUser.IsOnline)
	assert.Equal(t, 3, resp.Chats[0].UnreadCount)

	deps.chatRepo.AssertExpectations(t)
	deps.userRepo.AssertExpectations(t)
}

func TestListChatsRepoError(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.chatRepo.On("ListChats", mock.Anything, userID).
		Return(([]models.Chat)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	deps.chatRepo.AssertExpectations(t)
}

func TestStartChatSuccess(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	friendID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.userRepo.On("GetUser", mock.Anything, friendID).
		Return(models.User{ID: friendID, Username: "bob"}, nil).Once()
	deps.chatRepo.On("CreateChat", mock.Anything, userID, friendID).
		Return(models.Chat{ID: uuid.New(), User1ID: userID, User2ID: friendID}, nil).Once()

	body := bytes.NewBufferString(fmt.Sprintf(`{"user_id":%q}`, friendID))
	req := httptest.NewRequest(http.MethodPost, "/chat/new", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	deps.userRepo.AssertExpectations(t)
	deps.chatRepo.AssertExpectations(t)
}

func TestStartChatAlreadyExists(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	friendID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.userRepo.On("GetUser", mock.Anything, friendID).
		Return(models.User{ID: friendID}, nil).Once()
	deps.chatRepo.On("CreateChat", mock.Anything, userID, friendID).
		Return(models.Chat{}, repositories.ErrChatExists).Once()

	body := bytes.NewBufferString(fmt.Sprintf(`{"user_id":%q}`, friendID))
	req := httptest.NewRequest(http.MethodPost, "/chat/new", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartChatUnknownUser(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	friendID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.userRepo.On("GetUser", mock.Anything, friendID).
		Return(models.User{}, repositories.ErrUserNotFound).Once()

	body := bytes.NewBufferString(fmt.Sprintf(`{"user_id":%q}`, friendID))
	req := httptest.NewRequest(http.MethodPost, "/chat/new", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteChatNotParticipant(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	chatID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.chatRepo.On("GetChat", mock.Anything, chatID).
		Return(models.Chat{ID: chatID, User1ID: uuid.New(), User2ID: uuid.New()}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chat/"+chatID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	deps.chatRepo.AssertNotCalled(t, "DeactivateChat", mock.Anything, mock.Anything)
}

func TestDeleteChatSuccess(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	chatID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.chatRepo.On("GetChat", mock.Anything, chatID).
		Return(models.Chat{ID: chatID, User1ID: userID, User2ID: uuid.New()}, nil).Once()
	deps.chatRepo.On("DeactivateChat", mock.Anything, chatID).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chat/"+chatID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	deps.chatRepo.AssertExpectations(t)
}

func TestGetMessagesNoChatYet(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	peerID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.chatRepo.On("GetChatByUsers", mock.Anything, userID, peerID).
		Return(models.Chat{}, repositories.ErrChatNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/messages/"+peerID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Messages)
}

func TestGetMessagesSuccess(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	peerID := uuid.New()
	chatID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.chatRepo.On("GetChatByUsers", mock.Anything, userID, peerID).
		Return(models.Chat{ID: chatID, User1ID: userID, User2ID: peerID}, nil).Once()
	deps.messageRepo.On("ListChatMessages", mock.Anything, chatID, 0, 100).
		Return([]models.Message{{ID: uuid.New(), ChatID: chatID, SenderID: peerID, ReceiverID: userID, IsRead: true}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/messages/"+peerID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	deps.messageRepo.AssertExpectations(t)
}

func TestGetMessagesMarksUnreadAsRead(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	peerID := uuid.New()
	chatID := uuid.New()
	messageID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	unread := models.Message{ID: messageID, ChatID: chatID, SenderID: peerID, ReceiverID: userID}
	deps.chatRepo.On("GetChatByUsers", mock.Anything, userID, peerID).
		Return(models.Chat{ID: chatID, User1ID: userID, User2ID: peerID}, nil).Once()
	deps.messageRepo.On("ListChatMessages", mock.Anything, chatID, 0, 100).
		Return([]models.Message{unread}, nil).Once()
	deps.messageRepo.On("GetMessage", mock.Anything, messageID).Return(unread, nil).Once()
	deps.messageRepo.On("MarkRead", mock.Anything, messageID, mock.Anything).Return(true, nil).Once()
	deps.chatRepo.On("ResetUnread", mock.Anything, chatID, userID).Return(nil).Once()
	deps.messageRepo.On("CreateReadReceipt", mock.Anything, messageID, userID).Return(nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/messages/"+peerID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	assert.True(t, resp.Messages[0].IsRead)

	deps.messageRepo.AssertExpectations(t)
	deps.chatRepo.AssertExpectations(t)
}

func TestPostMessageSuccess(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	receiverID := uuid.New()
	chatID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.userRepo.On("GetUser", mock.Anything, receiverID).
		Return(models.User{ID: receiverID}, nil).Once()
	deps.chatRepo.On("GetOrCreateChat", mock.Anything, userID, receiverID).
		Return(models.Chat{ID: chatID, User1ID: userID, User2ID: receiverID}, nil).Once()
	deps.messageRepo.On("CreateMessage", mock.Anything, mock.Anything).
		Return(models.Message{ID: uuid.New(), ChatID: chatID, SenderID: userID, ReceiverID: receiverID, MessageType: models.MessageTypeText}, nil).Once()
	deps.chatRepo.On("SetLastMessage", mock.Anything, chatID, mock.Anything).Return(nil).Once()
	deps.chatRepo.On("IncrementUnread", mock.Anything, chatID, receiverID).Return(nil).Once()

	body := bytes.NewBufferString(fmt.Sprintf(`{"receiver_id":%q,"content":"hello"}`, receiverID))
	req := httptest.NewRequest(http.MethodPost, "/chat/message", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	deps.chatRepo.AssertExpectations(t)
	deps.messageRepo.AssertExpectations(t)
}

func TestPostMessageUnknownReceiver(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	receiverID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.userRepo.On("GetUser", mock.Anything, receiverID).
		Return(models.User{}, repositories.ErrUserNotFound).Once()

	body := bytes.NewBufferString(fmt.Sprintf(`{"receiver_id":%q,"content":"hello"}`, receiverID))
	req := httptest.NewRequest(http.MethodPost, "/chat/message", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	deps.chatRepo.AssertNotCalled(t, "GetOrCreateChat", mock.Anything, mock.Anything, mock.Anything)
}

func TestReplyToMessageSuccess(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	peerID := uuid.New()
	chatID := uuid.New()
	originalID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.messageRepo.On("GetMessage", mock.Anything, originalID).
		Return(models.Message{ID: originalID, ChatID: chatID, SenderID: peerID, ReceiverID: userID}, nil).Once()
	deps.userRepo.On("GetUser", mock.Anything, peerID).
		Return(models.User{ID: peerID}, nil).Once()
	deps.chatRepo.On("GetOrCreateChat", mock.Anything, userID, peerID).
		Return(models.Chat{ID: chatID, User1ID: userID, User2ID: peerID}, nil).Once()
	deps.messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(msg repositories.NewMessage) bool {
		return msg.ReceiverID == peerID && msg.ReplyToID.Valid && msg.ReplyToID.UUID == originalID &&
			msg.Content != nil && *msg.Content == "sure"
	})).Return(models.Message{ID: uuid.New(), ChatID: chatID, SenderID: userID, ReceiverID: peerID, MessageType: models.MessageTypeText}, nil).Once()
	deps.chatRepo.On("SetLastMessage", mock.Anything, chatID, mock.Anything).Return(nil).Once()
	deps.chatRepo.On("IncrementUnread", mock.Anything, chatID, peerID).Return(nil).Once()

	body := bytes.NewBufferString(`{"content":"sure"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat/reply/"+originalID.String(), body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	deps.messageRepo.AssertExpectations(t)
	deps.chatRepo.AssertExpectations(t)
}

func TestReplyToMessageNotParticipant(t *testing.T) {
	deps := newChatHandlerDeps()
	originalID := uuid.New()
	router := setupChatRouter(deps.handler(), uuid.New())

	deps.messageRepo.On("GetMessage", mock.Anything, originalID).
		Return(models.Message{ID: originalID, SenderID: uuid.New(), ReceiverID: uuid.New()}, nil).Once()

	body := bytes.NewBufferString(`{"content":"sure"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat/reply/"+originalID.String(), body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	deps.messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestMarkReadForbiddenForSender(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	messageID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.messageRepo.On("GetMessage", mock.Anything, messageID).
		Return(models.Message{ID: messageID, SenderID: userID, ReceiverID: uuid.New()}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/read/"+messageID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSetTypingSuccess(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	chatID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.chatRepo.On("GetChat", mock.Anything, chatID).
		Return(models.Chat{ID: chatID, User1ID: userID, User2ID: uuid.New()}, nil).Once()
	deps.typingRepo.On("UpsertTyping", mock.Anything, chatID, userID, true).Return(nil).Once()

	body := bytes.NewBufferString(`{"is_typing":true}`)
	req := httptest.NewRequest(http.MethodPost, "/chat/typing/"+chatID.String(), body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	deps.typingRepo.AssertExpectations(t)
}

func TestGetTypingNotParticipant(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	chatID := uuid.New()
	router := setupChatRouter(deps.handler(), userID)

	deps.chatRepo.On("GetChat", mock.Anything, chatID).
		Return(models.Chat{ID: chatID, User1ID: uuid.New(), User2ID: uuid.New()}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/typing/"+chatID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCheckOnline(t *testing.T) {
	deps := newChatHandlerDeps()
	userID := uuid.New()
	targetID := uuid.New()
	deps.presence.online[targetID] = true
	router := setupChatRouter(deps.handler(), userID)

	deps.userRepo.On("GetUser", mock.Anything, targetID).
		Return(models.User{ID: targetID, Username: "bob", Online: true}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/online/"+targetID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, true, resp["is_online"])
}

func TestOnlineUsersInvalidID(t *testing.T) {
	deps := newChatHandlerDeps()
	router := setupChatRouter(deps.handler(), uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/chat/online-users?user_ids=not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOnlineUsersSuccess(t *testing.T) {
	deps := newChatHandlerDeps()
	online := uuid.New()
	offline := uuid.New()
	deps.presence.online[online] = true
	router := setupChatRouter(deps.handler(), uuid.New())

	url := fmt.Sprintf("/chat/online-users?user_ids=%s&user_ids=%s", online, offline)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]bool
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp[online.String()])
	assert.False(t, resp[offline.String()])
}
