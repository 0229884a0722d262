package domain

// Membership identifies one named presence inside a room.
type Membership struct {
	Room     RoomID
	Username string
}

// UserStatus is one entry of a presence broadcast.
type UserStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// PushNotification is the payload handed to the web-push side channel.
type PushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}
