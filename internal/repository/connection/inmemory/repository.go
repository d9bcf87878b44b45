package inmemory

import (
	"errors"
	"sync"

	"github.com/tunesync/server/pkg/wsrouter"
)

var (
	ErrConnNotFound      = errors.New("connection not found")
	ErrConnAlreadyExists = errors.New("connection already exists")
)

type session struct {
	conn   *wsrouter.Conn
	roomId string
}

// repo tracks which websocket connection belongs to which member, and which
// room each member is attached to.
type repo struct {
	mu        sync.RWMutex
	byMember  map[string]session
	memberIds map[*wsrouter.Conn]string
}

func NewRepo() *repo {
	return &repo{
		byMember:  make(map[string]session),
		memberIds: make(map[*wsrouter.Conn]string),
	}
}

func (r *repo) Add(conn *wsrouter.Conn, memberId, roomId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byMember[memberId]; ok {
		return ErrConnAlreadyExists
	}

	r.byMember[memberId] = session{conn: conn, roomId: roomId}
	r.memberIds[conn] = memberId

	return nil
}

func (r *repo) RemoveByConn(conn *wsrouter.Conn) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	memberId, ok := r.memberIds[conn]
	if !ok {
		return "", "", ErrConnNotFound
	}

	sess := r.byMember[memberId]
	delete(r.byMember, memberId)
	delete(r.memberIds, conn)

	return memberId, sess.roomId, nil
}

func (r *repo) GetConn(memberId string) (*wsrouter.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.byMember[memberId]
	if !ok {
		return nil, ErrConnNotFound
	}

	return sess.conn, nil
}

func (r *repo) GetMemberId(conn *wsrouter.Conn) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memberId, ok := r.memberIds[conn]
	if !ok {
		return "", ErrConnNotFound
	}

	return memberId, nil
}

func (r *repo) GetConnsByRoomId(roomId string) []*wsrouter.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*wsrouter.Conn, 0)
	for _, sess := range r.byMember {
		if sess.roomId == roomId {
			conns = append(conns, sess.conn)
		}
	}

	return conns
}
