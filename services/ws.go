package services

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ovalbet/bingo-engine/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// roomPushInterval paces the watch stream.
const roomPushInterval = 2 * time.Second

// RoomWatch streams a room's lane phase and latest round over a
// websocket. It only reads the scheduler's published snapshots; it never
// touches lane state directly.
type RoomWatch struct {
	scheduler *Scheduler
	store     *Store
	log       *zap.SugaredLogger
}

func NewRoomWatch(scheduler *Scheduler, store *Store, log *zap.SugaredLogger) *RoomWatch {
	return &RoomWatch{scheduler: scheduler, store: store, log: log}
}

type roomFrame struct {
	Room  int           `json:"room"`
	Lane  *LaneStatus   `json:"lane,omitempty"`
	Round *models.Round `json:"round,omitempty"`
}

// Handle upgrades GET /ws/rooms/:room and pushes a frame every interval
// until the client goes away.
func (w *RoomWatch) Handle(c *gin.Context) {
	room, err := strconv.Atoi(c.Param("room"))
	if err != nil || room < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		w.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(conn, w.log.With("room", room))
	go client.writePump()
	go client.readPump()

	ctx := c.Request.Context()
	ticker := time.NewTicker(roomPushInterval)
	defer ticker.Stop()
	defer client.Close()

	for {
		frame := roomFrame{Room: room}
		for _, st := range w.scheduler.Snapshot(ctx) {
			if st.Room == room {
				st := st
				frame.Lane = &st
				break
			}
		}
		if round, err := w.store.LatestRound(ctx, room); err == nil {
			frame.Round = round
		}
		if b, err := json.Marshal(frame); err == nil {
			client.enqueue(b)
		}

		select {
		case <-ticker.C:
		case <-client.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
