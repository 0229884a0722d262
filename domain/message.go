// Package domain contains core concepts of the relay.
// This file defines Message records and related rules.
// Messages are immutable once stored and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RoomID identifies a room. Rooms exist implicitly once referenced;
// there is no explicit creation step.
type RoomID string

// SystemSender authors join/leave/disconnect notices.
const SystemSender = "System"

// Message represents an immutable chat record.
// Exactly one of Text or the Filename/Mimetype/FileData triple is set.
type Message struct {
	ID       uuid.UUID
	Room     RoomID
	Sender   string
	Text     string
	Filename string
	Mimetype string
	FileData []byte
	// Seq breaks ordering ties between messages stored in the same
	// nanosecond. Assigned by the store, monotonic per process.
	Seq uint64
	At  time.Time
}

// IsFile reports whether the message carries a file payload.
func (m Message) IsFile() bool { return m.Filename != "" }

func NewTextMessage(room RoomID, sender, text string) Message {
	return Message{Room: room, Sender: sender, Text: text}
}

func NewFileMessage(room RoomID, sender, filename, mimetype string, data []byte) Message {
	return Message{Room: room, Sender: sender, Filename: filename, Mimetype: mimetype, FileData: data}
}
