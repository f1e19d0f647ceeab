package hub

import "time"

// Outbound event names.
const (
	EventMessage        = "message"
	EventNamespaceCount = "userCountUpdate"
	EventRoomCount      = "roomCountUpdate"
	EventMachineData    = "machineData"
)

// ServerSender is the author of every server-originated notice.
const ServerSender = "Server"

// Notice codes carried by server notices.
const (
	NoticeNotInRoom    = "not_in_room"
	NoticeInvalidRoom  = "invalid_room"
	NoticeInvalidEvent = "invalid_event"
	NoticeRateLimited  = "rate_limited"
)

// Event is the transport-independent unit delivered to a Sink.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Message is a chat line or a server notice.
type Message struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Code      string    `json:"code,omitempty"`
}

// NamespaceCount reports the live member count of a namespace.
type NamespaceCount struct {
	Count int `json:"count"`
}

// RoomCount reports the live member count of a room.
type RoomCount struct {
	Room  string `json:"room"`
	Count int    `json:"count"`
}

// MessageEvent wraps a chat message from sender.
func MessageEvent(sender, text string, at time.Time) Event {
	return Event{Name: EventMessage, Data: Message{Sender: sender, Text: text, Timestamp: at}}
}

// NoticeEvent wraps a server notice. code may be empty for informational notices.
func NoticeEvent(code, text string, at time.Time) Event {
	return Event{Name: EventMessage, Data: Message{Sender: ServerSender, Text: text, Timestamp: at, Code: code}}
}

func namespaceCountEvent(count int) Event {
	return Event{Name: EventNamespaceCount, Data: NamespaceCount{Count: count}}
}

func roomCountEvent(room string, count int) Event {
	return Event{Name: EventRoomCount, Data: RoomCount{Room: room, Count: count}}
}
