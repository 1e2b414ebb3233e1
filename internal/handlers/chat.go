package handlers

import (
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messenger-service/internal/chat"
	"messenger-service/internal/middleware"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
)

// Presence resolves live online state from the connection registry.
type Presence interface {
	IsOnline(userID uuid.UUID) bool
	OnlineStatus(userIDs []uuid.UUID) map[uuid.UUID]bool
}

// ChatHandler serves the REST chat surface. Mutating operations go through
// the coordinator so REST and websocket paths share one set of semantics.
type ChatHandler struct {
	chats       repositories.ChatRepository
	messages    repositories.MessageRepository
	users       repositories.UserRepository
	coordinator *chat.Coordinator
	presence    Presence
	audit       *telemetry.AuditEmitter
	uploadDir   string
	maxUpload   int64
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	coordinator *chat.Coordinator,
	presence Presence,
	audit *telemetry.AuditEmitter,
	uploadDir string,
	maxUpload int64,
) *ChatHandler {
	return &ChatHandler{
		chats:       chats,
		messages:    messages,
		users:       users,
		coordinator: coordinator,
		presence:    presence,
		audit:       audit,
		uploadDir:   uploadDir,
		maxUpload:   maxUpload,
	}
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// ListChats returns the caller's active chats ordered by recency, each with
// the other participant, the last message, and the caller's unread count.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	chats, err := h.chats.ListChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	otherIDs := make([]uuid.UUID, 0, len(chats))
	for _, chatRow := range chats {
		otherIDs = append(otherIDs, chatRow.OtherParticipant(userID))
	}

	others, err := h.users.ListUsers(c.Request.Context(), otherIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	usersByID := make(map[uuid.UUID]models.User, len(others))
	for _, u := range others {
		usersByID[u.ID] = u
	}
	online := h.presence.OnlineStatus(otherIDs)

	infos := make([]models.ChatInfo, 0, len(chats))
	for _, chatRow := range chats {
		otherID := chatRow.OtherParticipant(userID)
		other, ok := usersByID[otherID]
		if !ok {
			continue
		}

		info := models.ChatInfo{
			ID:          chatRow.ID,
			User1ID:     chatRow.User1ID,
			User2ID:     chatRow.User2ID,
			OtherUser:   h.userInfo(other, online[otherID]),
			UnreadCount: chatRow.UnreadFor(userID),
			CreatedAt:   chatRow.CreatedAt,
			UpdatedAt:   chatRow.UpdatedAt,
		}
		if chatRow.LastMessageID.Valid {
			if last, err := h.messages.GetMessage(c.Request.Context(), chatRow.LastMessageID.UUID); err == nil {
				info.LastMessage = &last
			}
		}
		infos = append(infos, info)
	}

	c.JSON(http.StatusOK, gin.H{"chats": infos})
}

// StartChat explicitly creates a chat with another user.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		UserID uuid.UUID `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.CurrentUserID(c)
	other, err := h.users.GetUser(c.Request.Context(), req.UserID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	chatRow, err := h.chats.CreateChat(c.Request.Context(), userID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrChatExists):
			c.JSON(http.StatusBadRequest, gin.H{"error": "chat already exists"})
		case errors.Is(err, repositories.ErrSelfChat):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		}
		return
	}

	h.emitAudit(c, "INFO", "chat created")
	c.JSON(http.StatusCreated, models.ChatInfo{
		ID:        chatRow.ID,
		User1ID:   chatRow.User1ID,
		User2ID:   chatRow.User2ID,
		OtherUser: h.userInfo(other, h.presence.IsOnline(other.ID)),
		CreatedAt: chatRow.CreatedAt,
		UpdatedAt: chatRow.UpdatedAt,
	})
}

// DeleteChat soft-deletes a chat; the row is only marked inactive.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}
	userID := middleware.CurrentUserID(c)

	chatRow, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if !chatRow.Participant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		return
	}

	if err := h.chats.DeactivateChat(c.Request.Context(), chatID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete chat"})
		return
	}
	h.emitAudit(c, "INFO", "chat deleted")
	c.JSON(http.StatusOK, gin.H{"message": "chat deleted"})
}

// GetMessagesWithUser returns the message history with a peer, oldest
// first. No chat yet means an empty history, not an error. Fetching history
// also marks messages addressed to the caller as read, with the usual
// receipt, counter reset, and sender notification per message.
func (h *ChatHandler) GetMessagesWithUser(c *gin.Context) {
	peerID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	userID := middleware.CurrentUserID(c)
	skip, limit := pagination(c)

	chatRow, err := h.chats.GetChatByUsers(c.Request.Context(), userID, peerID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusOK, gin.H{"messages": []models.Message{}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return
	}

	msgs, err := h.messages.ListChatMessages(c.Request.Context(), chatRow.ID, skip, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	now := time.Now().UTC()
	for i := range msgs {
		if msgs[i].ReceiverID != userID || msgs[i].IsRead {
			continue
		}
		if _, err := h.coordinator.MarkRead(c.Request.Context(), msgs[i].ID, userID); err != nil {
			log.Printf("mark read on fetch for %s: %v", msgs[i].ID, err)
			continue
		}
		msgs[i].IsRead = true
		msgs[i].ReadAt = &now
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage sends a text message over REST; live connections of both
// participants receive the same event the websocket path produces.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		ReceiverID  uuid.UUID          `json:"receiver_id" binding:"required"`
		Content     string             `json:"content" binding:"required"`
		MessageType models.MessageType `json:"message_type"`
		ReplyToID   uuid.NullUUID      `json:"reply_to_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.CurrentUserID(c)
	msg, err := h.coordinator.SendMessage(c.Request.Context(), userID, chat.SendMessageInput{
		ReceiverID:  req.ReceiverID,
		MessageType: req.MessageType,
		Content:     req.Content,
		ReplyToID:   req.ReplyToID,
	})
	if err != nil {
		h.sendMessageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// PostMedia accepts a multipart upload, stores the file, and sends a media
// message referencing it.
func (h *ChatHandler) PostMedia(c *gin.Context) {
	receiverID, err := uuid.Parse(c.PostForm("receiver_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receiver id"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	contentType := file.Header.Get("Content-Type")
	storedName := uuid.NewString() + filepath.Ext(file.Filename)
	if err := c.SaveUploadedFile(file, filepath.Join(h.uploadDir, storedName)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store file"})
		return
	}

	mediaURL := "/uploads/" + storedName
	fileName := file.Filename
	fileSize := file.Size
	userID := middleware.CurrentUserID(c)

	msg, err := h.coordinator.SendMessage(c.Request.Context(), userID, chat.SendMessageInput{
		ReceiverID:  receiverID,
		MessageType: mediaMessageType(contentType),
		MediaURL:    &mediaURL,
		FileName:    &fileName,
		FileSize:    &fileSize,
		FileType:    &contentType,
	})
	if err != nil {
		h.sendMessageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// PostLocation sends a location message.
func (h *ChatHandler) PostLocation(c *gin.Context) {
	var req struct {
		ReceiverID uuid.UUID `json:"receiver_id" binding:"required"`
		Latitude   *float64  `json:"latitude" binding:"required"`
		Longitude  *float64  `json:"longitude" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.CurrentUserID(c)
	msg, err := h.coordinator.SendMessage(c.Request.Context(), userID, chat.SendMessageInput{
		ReceiverID:  req.ReceiverID,
		MessageType: models.MessageTypeLocation,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		h.sendMessageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ForwardMessage copies a message to another receiver, preserving content
// and media and recording the original sender.
func (h *ChatHandler) ForwardMessage(c *gin.Context) {
	messageID, ok := parseUUIDParam(c, "message_id")
	if !ok {
		return
	}
	var req struct {
		ReceiverID uuid.UUID `json:"receiver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.CurrentUserID(c)
	original, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if original.SenderID != userID && original.ReceiverID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of the original message"})
		return
	}

	in := chat.SendMessageInput{
		ReceiverID:      req.ReceiverID,
		MessageType:     original.MessageType,
		MediaURL:        original.MediaURL,
		FileName:        original.FileName,
		FileSize:        original.FileSize,
		FileType:        original.FileType,
		Latitude:        original.Latitude,
		Longitude:       original.Longitude,
		ForwardedFromID: uuid.NullUUID{UUID: original.SenderID, Valid: true},
	}
	if original.Content != nil {
		in.Content = *original.Content
	}

	msg, err := h.coordinator.SendMessage(c.Request.Context(), userID, in)
	if err != nil {
		h.sendMessageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ReplyToMessage sends a text reply to an existing message. The reply goes
// to the original message's author, or to the other participant when the
// caller replies to their own message.
func (h *ChatHandler) ReplyToMessage(c *gin.Context) {
	messageID, ok := parseUUIDParam(c, "message_id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.CurrentUserID(c)
	original, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if original.SenderID != userID && original.ReceiverID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of the original message"})
		return
	}

	receiverID := original.SenderID
	if receiverID == userID {
		receiverID = original.ReceiverID
	}

	msg, err := h.coordinator.SendMessage(c.Request.Context(), userID, chat.SendMessageInput{
		ReceiverID:  receiverID,
		MessageType: models.MessageTypeText,
		Content:     req.Content,
		ReplyToID:   uuid.NullUUID{UUID: messageID, Valid: true},
	})
	if err != nil {
		h.sendMessageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead marks a message as read. Repeat calls are no-ops.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	messageID, ok := parseUUIDParam(c, "message_id")
	if !ok {
		return
	}
	userID := middleware.CurrentUserID(c)

	_, err := h.coordinator.MarkRead(c.Request.Context(), messageID, userID)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		case errors.Is(err, chat.ErrNotMessageReceiver):
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized to mark this message as read"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark message as read"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// GetTyping returns non-stale typing records for the chat.
func (h *ChatHandler) GetTyping(c *gin.Context) {
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}
	userID := middleware.CurrentUserID(c)

	statuses, err := h.coordinator.GetTyping(c.Request.Context(), chatID, userID)
	if err != nil {
		h.typingError(c, err)
		return
	}
	if statuses == nil {
		statuses = []models.TypingStatus{}
	}
	c.JSON(http.StatusOK, gin.H{"typing": statuses})
}

// SetTyping updates the caller's typing state in a chat.
func (h *ChatHandler) SetTyping(c *gin.Context) {
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		IsTyping *bool `json:"is_typing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	isTyping := true
	if req.IsTyping != nil {
		isTyping = *req.IsTyping
	}

	userID := middleware.CurrentUserID(c)
	if err := h.coordinator.SetTyping(c.Request.Context(), chatID, userID, isTyping); err != nil {
		h.typingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "is_typing": isTyping})
}

// CheckOnline reports live and persisted presence for one user.
func (h *ChatHandler) CheckOnline(c *gin.Context) {
	targetID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), targetID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       user.ID,
		"is_online":     h.presence.IsOnline(user.ID),
		"online_status": user.Online,
		"last_seen":     user.LastSeen,
	})
}

// OnlineUsers resolves live presence for a list of users.
func (h *ChatHandler) OnlineUsers(c *gin.Context) {
	raw := c.QueryArray("user_ids")
	if len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_ids is required"})
		return
	}

	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id: " + s})
			return
		}
		ids = append(ids, id)
	}

	status := h.presence.OnlineStatus(ids)
	resp := make(map[string]bool, len(status))
	for id, online := range status {
		resp[id.String()] = online
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) sendMessageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrSelfChat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
	case errors.Is(err, chat.ErrInvalidMessageType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message type"})
	case errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "receiver not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
	}
}

func (h *ChatHandler) typingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, chat.ErrNotChatParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "typing status failed"})
	}
}

func (h *ChatHandler) userInfo(user models.User, isOnline bool) models.UserInfo {
	return models.UserInfo{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Online:       user.Online,
		IsOnline:     isOnline,
		LastSeen:     user.LastSeen,
		ProfileImage: user.ProfileImage,
	}
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		skip = 0
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 100
	}
	return skip, limit
}

func mediaMessageType(contentType string) models.MessageType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MessageTypeImage
	case strings.HasPrefix(contentType, "video/"):
		return models.MessageTypeVideo
	case strings.HasPrefix(contentType, "audio/"):
		return models.MessageTypeAudio
	default:
		return models.MessageTypeFile
	}
}
