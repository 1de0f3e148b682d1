package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"hovertrail.io/engine/protocol"
	"hovertrail.io/engine/sim"
)

const writeWait = 5 * time.Second

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

// ---------------------------------------------------------------------------
// Client - one per websocket connection
// ---------------------------------------------------------------------------

// client implements session.Conn on top of a websocket. Send only queues;
// writePump owns all writes to the socket.
type client struct {
	game    *Game
	conn    *websocket.Conn
	logger  *slog.Logger
	limiter *rate.Limiter

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	id sim.PlayerID // set by readPump once joined
}

func (c *client) Send(msg []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendBufferFull
	}
}

func (c *client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// ---------------------------------------------------------------------------
// WebSocket handler
// ---------------------------------------------------------------------------

type wsHandler struct {
	game     *Game
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func newWSHandler(game *Game, logger *slog.Logger) *wsHandler {
	origins := game.cfg.AllowedOrigins
	return &wsHandler{
		game:   game,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
			},
		},
	}
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade", "remote", r.RemoteAddr, "err", err)
		return
	}
	h.logger.Debug("ws upgrade", "remote", r.RemoteAddr)

	cfg := h.game.cfg
	c := &client{
		game:    h.game,
		conn:    conn,
		logger:  h.logger.With("remote", r.RemoteAddr),
		limiter: rate.NewLimiter(rate.Limit(cfg.InputRate), cfg.InputBurst),
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
	}

	go c.writePump(cfg.PingInterval)

	// Reader blocks here until disconnect
	c.readPump(r.Context(), cfg)

	c.Close()
	if c.id != "" {
		h.game.Leave(c.id)
		c.logger.Info("disconnected", "player", c.id)
	}
}

// ---------------------------------------------------------------------------
// Read pump - one goroutine per client, reads client messages
// ---------------------------------------------------------------------------

func (c *client) readPump(ctx context.Context, cfg Config) {
	idle := 2 * cfg.PingInterval
	c.conn.SetReadLimit(cfg.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read", "player", c.id, "err", err)
			}
			return
		}
		c.game.RecordBytesRecv(len(data))
		c.conn.SetReadDeadline(time.Now().Add(idle))

		if !c.limiter.Allow() {
			c.logger.Debug("input dropped", "player", c.id, "reason", "rate limited")
			continue
		}

		switch msgType {
		case websocket.TextMessage:
			c.handleText(ctx, data)
		case websocket.BinaryMessage:
			cmd, err := protocol.ParseBinaryInput(data)
			if err != nil {
				c.reject(err)
				continue
			}
			c.submit(cmd)
		}
	}
}

func (c *client) handleText(ctx context.Context, data []byte) {
	msg, err := protocol.ParseClientText(data)
	if err != nil {
		c.reject(err)
		return
	}
	switch msg.T {
	case protocol.TypeJoin:
		if c.id != "" {
			c.reject(errors.New("already joined"))
			return
		}
		res, err := c.game.Join(ctx, c, msg.Name)
		if err != nil {
			c.logger.Info("join failed", "err", err)
			_ = c.Send(protocol.NewJoinFailed(err.Error()))
			return
		}
		c.id = res.ID
	case protocol.TypeInput:
		cmd, err := msg.Command()
		if err != nil {
			c.reject(err)
			return
		}
		c.submit(cmd)
	case protocol.TypeRespawn:
		if c.id != "" {
			c.game.Respawn(c.id)
		}
	case protocol.TypePing:
		c.reply(protocol.NewPong(msg.N))
	}
}

func (c *client) submit(cmd sim.Command) {
	if c.id == "" {
		c.reject(errors.New("not joined"))
		return
	}
	if err := c.game.Submit(c.id, cmd); err != nil {
		c.reject(err)
	}
}

// reject drops a client message. The player's previous command stays in
// effect.
func (c *client) reject(err error) {
	c.logger.Debug("input rejected", "player", c.id, "err", err)
	c.reply(protocol.NewError(err.Error()))
}

// reply queues an answer to the client's own message. Half of the send
// buffer stays free for frames: a full buffer fails the next broadcast and
// drops the session.
func (c *client) reply(msg []byte) {
	if cap(c.send)-len(c.send) <= cap(c.send)/2 {
		c.logger.Debug("reply dropped", "player", c.id, "queued", len(c.send))
		return
	}
	_ = c.Send(msg)
}

// ---------------------------------------------------------------------------
// Write pump - one goroutine per client, sends messages to client
// ---------------------------------------------------------------------------

func (c *client) writePump(pingInterval time.Duration) {
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		pingTicker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			kind := websocket.BinaryMessage
			if protocol.IsText(msg) {
				kind = websocket.TextMessage
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(kind, msg); err != nil {
				c.Close()
				return
			}
		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Stats API
// ---------------------------------------------------------------------------

func HandleStats(game *Game, w http.ResponseWriter, r *http.Request) {
	snap := game.GetStats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}
