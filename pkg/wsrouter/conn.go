package wsrouter

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn serializes writes to one websocket connection. gorilla/websocket
// supports a single concurrent writer, and the read loop's command replies
// race the broadcast fan-out, so every write goes through the mutex. Reads
// stay unguarded; the router is the only reader.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(messageType, data)
}

func (c *Conn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *Conn) ReadJSON(v any) error {
	return c.ws.ReadJSON(v)
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
