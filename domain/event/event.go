// Package event defines the outbound events the relay emits to the
// realtime gateway, and the commands that route them there.
package event

import (
	"time"

	"room-relay/domain"
)

// Outbound is a named event delivered to clients through the gateway.
type Outbound interface {
	EventName() string
}

type MessagePosted struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"ts"`
}

func (MessagePosted) EventName() string { return "message" }

type FilePosted struct {
	Sender   string    `json:"sender"`
	Filename string    `json:"filename"`
	Mimetype string    `json:"mimetype"`
	Data     []byte    `json:"data"`
	At       time.Time `json:"ts"`
}

func (FilePosted) EventName() string { return "file" }

type UsersUpdate struct {
	Room  string              `json:"room"`
	Users []domain.UserStatus `json:"users"`
}

func (UsersUpdate) EventName() string { return "users_update" }

type HistoryCleared struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

func (HistoryCleared) EventName() string { return "clear" }

type RoomDestroyed struct {
	Room string `json:"room"`
}

func (RoomDestroyed) EventName() string { return "room_destroyed" }

type LeftRoom struct {
	Room string `json:"room"`
}

func (LeftRoom) EventName() string { return "left_room" }

type Cleanup struct {
	Message string `json:"message"`
}

func (Cleanup) EventName() string { return "cleanup" }

// FromMessage converts a stored record into its wire event.
func FromMessage(m domain.Message) Outbound {
	if m.IsFile() {
		return FilePosted{
			Sender:   m.Sender,
			Filename: m.Filename,
			Mimetype: m.Mimetype,
			Data:     m.FileData,
			At:       m.At,
		}
	}
	return MessagePosted{Sender: m.Sender, Text: m.Text, At: m.At}
}

// SystemNotice builds the "message" event used for join/leave/disconnect
// announcements.
func SystemNotice(text string, at time.Time) MessagePosted {
	return MessagePosted{Sender: domain.SystemSender, Text: text, At: at}
}
