package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"messenger-service/internal/models"
)

// Inbound frame type discriminators.
const (
	FrameTypePing       = "ping"
	FrameTypeMessage    = "message"
	FrameTypeTyping     = "typing"
	FrameTypeRead       = "read"
	FrameTypeChatUpdate = "chat_update"
)

var ErrInvalidFrame = errors.New("invalid frame")

// Frame is the closed set of inbound envelope kinds. Frames are decoded
// once at the session boundary and dispatched with exhaustive matching.
type Frame interface {
	frameType() string
}

// PingFrame requests a liveness pong.
type PingFrame struct{}

// MessageFrame asks to send a message to a receiver.
type MessageFrame struct {
	ReceiverID      uuid.UUID          `json:"receiver_id"`
	Content         string             `json:"content"`
	MessageType     models.MessageType `json:"message_type"`
	ReplyToID       uuid.NullUUID      `json:"reply_to_id"`
	ForwardedFromID uuid.NullUUID      `json:"forwarded_from_id"`
	ExtraData       types.JSONText     `json:"extra_data"`
}

// TypingFrame updates the sender's typing state in a chat.
type TypingFrame struct {
	ChatID   uuid.UUID `json:"chat_id"`
	IsTyping bool      `json:"is_typing"`
}

// ReadFrame marks a message as read by the sender of the frame.
type ReadFrame struct {
	MessageID uuid.UUID `json:"message_id"`
}

// ChatUpdateFrame is reserved and currently a no-op.
type ChatUpdateFrame struct{}

func (PingFrame) frameType() string       { return FrameTypePing }
func (MessageFrame) frameType() string    { return FrameTypeMessage }
func (TypingFrame) frameType() string     { return FrameTypeTyping }
func (ReadFrame) frameType() string       { return FrameTypeRead }
func (ChatUpdateFrame) frameType() string { return FrameTypeChatUpdate }

// DecodeFrame parses one inbound envelope into its typed frame, validating
// the fields each kind requires.
func DecodeFrame(data []byte) (Frame, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	switch head.Type {
	case FrameTypePing:
		return PingFrame{}, nil

	case FrameTypeMessage:
		var frame MessageFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		if frame.ReceiverID == uuid.Nil {
			return nil, fmt.Errorf("%w: message requires receiver_id", ErrInvalidFrame)
		}
		if frame.MessageType == "" {
			frame.MessageType = models.MessageTypeText
		}
		if !frame.MessageType.Valid() {
			return nil, fmt.Errorf("%w: unknown message_type %q", ErrInvalidFrame, frame.MessageType)
		}
		if frame.MessageType == models.MessageTypeText && frame.Content == "" {
			return nil, fmt.Errorf("%w: text message requires content", ErrInvalidFrame)
		}
		return frame, nil

	case FrameTypeTyping:
		var frame TypingFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		if frame.ChatID == uuid.Nil {
			return nil, fmt.Errorf("%w: typing requires chat_id", ErrInvalidFrame)
		}
		return frame, nil

	case FrameTypeRead:
		var frame ReadFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		if frame.MessageID == uuid.Nil {
			return nil, fmt.Errorf("%w: read requires message_id", ErrInvalidFrame)
		}
		return frame, nil

	case FrameTypeChatUpdate:
		return ChatUpdateFrame{}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidFrame, head.Type)
	}
}
