package chat

import "errors"

var (
	// ErrNotChatParticipant rejects an operation on a chat the caller does
	// not belong to.
	ErrNotChatParticipant = errors.New("not a chat participant")

	// ErrNotMessageReceiver rejects a read mark from anyone but the
	// message's addressee.
	ErrNotMessageReceiver = errors.New("message not addressed to reader")

	// ErrInvalidMessageType rejects an unknown message type tag.
	ErrInvalidMessageType = errors.New("invalid message type")
)
