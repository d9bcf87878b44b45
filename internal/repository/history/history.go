package history

// Entry is one record of the append-only play-history sink.
type Entry struct {
	RoomId    string `json:"room_id"`
	TrackId   string `json:"track_id"`
	UserId    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
}
