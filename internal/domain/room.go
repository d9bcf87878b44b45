package domain

import "golang.org/x/exp/slices"

type PlaybackState string

const (
	PlaybackPaused    PlaybackState = "PAUSED"
	PlaybackPlaying   PlaybackState = "PLAYING"
	PlaybackBuffering PlaybackState = "BUFFERING"
)

type TrackOrigin string

const (
	TrackOriginStreamed TrackOrigin = "STREAMED"
	TrackOriginUpload   TrackOrigin = "SHARED_UPLOAD"
)

type Track struct {
	Id              string      `json:"id"`
	Title           string      `json:"title"`
	Artist          string      `json:"artist"`
	DurationSeconds float64     `json:"duration_seconds"`
	Source          string      `json:"source"`
	Origin          TrackOrigin `json:"origin"`
}

type User struct {
	Id        string  `json:"id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
}

// RoomState is the single authoritative snapshot of one room. It is mutated
// only by the room service under the per-room lock and persisted as a whole.
type RoomState struct {
	Id             string        `json:"id"`
	Name           string        `json:"name"`
	Queue          []Track       `json:"queue"`
	CurrentTrackId *string       `json:"current_track_id"`
	PlaybackState  PlaybackState `json:"playback_state"`
	// StartAt is the authoritative instant (unix ms) playback started at,
	// shifted back by the resumed position. Nil while paused.
	StartAt        *int64  `json:"start_at"`
	PausedPosition float64 `json:"paused_position"`
	AdminId        string  `json:"admin_id"`
	Permitted      []string `json:"permitted"`
	// Users keeps stable join order; the earliest member is promoted when
	// the admin leaves.
	Users   []User `json:"users"`
	Version int64  `json:"version"`
}

func NewRoomState(roomId, name string) *RoomState {
	return &RoomState{
		Id:            roomId,
		Name:          name,
		Queue:         []Track{},
		PlaybackState: PlaybackPaused,
		Permitted:     []string{},
		Users:         []User{},
	}
}

// IsAdmin derives admin status from AdminId. Nothing else stores it.
func (rs *RoomState) IsAdmin(userId string) bool {
	return userId != "" && userId == rs.AdminId
}

func (rs *RoomState) MayControl(userId string) bool {
	return rs.IsAdmin(userId) || slices.Contains(rs.Permitted, userId)
}

func (rs *RoomState) HasUser(userId string) bool {
	return slices.IndexFunc(rs.Users, func(u User) bool { return u.Id == userId }) != -1
}

func (rs *RoomState) TrackIndex(trackId string) int {
	return slices.IndexFunc(rs.Queue, func(t Track) bool { return t.Id == trackId })
}

func (rs *RoomState) CurrentTrack() *Track {
	if rs.CurrentTrackId == nil {
		return nil
	}
	if i := rs.TrackIndex(*rs.CurrentTrackId); i != -1 {
		return &rs.Queue[i]
	}
	return nil
}

func (rs *RoomState) Grant(userId string) {
	if !slices.Contains(rs.Permitted, userId) {
		rs.Permitted = append(rs.Permitted, userId)
	}
}

func (rs *RoomState) Revoke(userId string) {
	if i := slices.Index(rs.Permitted, userId); i != -1 {
		rs.Permitted = slices.Delete(rs.Permitted, i, i+1)
	}
}

// AddUser appends the user and grants admin if the room has none. Invariant
// maintenance: the admin is always present and always permitted.
func (rs *RoomState) AddUser(user User) {
	if !rs.HasUser(user.Id) {
		rs.Users = append(rs.Users, user)
	}
	if rs.AdminId == "" || !rs.HasUser(rs.AdminId) {
		rs.AdminId = user.Id
		rs.Grant(user.Id)
	}
}

// RemoveUser removes the user, prunes the permitted set of absent ids and
// promotes the earliest remaining member when the admin departed.
func (rs *RoomState) RemoveUser(userId string) {
	if i := slices.IndexFunc(rs.Users, func(u User) bool { return u.Id == userId }); i != -1 {
		rs.Users = slices.Delete(rs.Users, i, i+1)
	}

	if rs.AdminId == userId {
		rs.AdminId = ""
		if len(rs.Users) > 0 {
			rs.AdminId = rs.Users[0].Id
		}
	}

	pruned := make([]string, 0, len(rs.Permitted))
	for _, id := range rs.Permitted {
		if id == rs.AdminId || rs.HasUser(id) {
			pruned = append(pruned, id)
		}
	}
	rs.Permitted = pruned

	if rs.AdminId != "" {
		rs.Grant(rs.AdminId)
	}
}
