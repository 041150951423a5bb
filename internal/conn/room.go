package conn

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/medichat/internal/proto"
)

const emitTimeout = 10 * time.Second

// RoomController scopes the handle's traffic to one consultation chat room.
// It emits one join per successful connection — membership does not survive
// a transport drop, so every reconnect triggers a fresh join — and a
// best-effort leave on close.
type RoomController struct {
	h      *Handle
	roomID string
	log    *zerolog.Logger
	unsub  func()
}

// NewRoomController subscribes to connection state and joins the room on
// every connected transition. If the handle is already connected the join
// is emitted immediately.
func NewRoomController(h *Handle, roomID string, logger *zerolog.Logger) *RoomController {
	rc := &RoomController{
		h:      h,
		roomID: roomID,
		log:    logger,
	}
	rc.unsub = h.SubscribeState(func(sc StateChange) {
		if sc.State == StateConnected {
			rc.join()
		}
	})
	if h.State() == StateConnected {
		rc.join()
	}
	return rc
}

func (rc *RoomController) join() {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	if err := rc.h.Emit(ctx, proto.Join(rc.roomID)); err != nil {
		rc.log.Warn().Err(err).Str("room_id", rc.roomID).Msg("join emit failed")
		return
	}
	rc.log.Info().Str("room_id", rc.roomID).Msg("joined chat room")
}

// Leave stops re-joining and tells the server we are gone, but only when
// the handle is still connected — a dead connection has nothing to notify.
func (rc *RoomController) Leave() {
	rc.unsub()

	if rc.h.State() != StateConnected {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	if err := rc.h.Emit(ctx, proto.Leave(rc.roomID)); err != nil {
		rc.log.Warn().Err(err).Str("room_id", rc.roomID).Msg("leave emit failed")
		return
	}
	rc.log.Info().Str("room_id", rc.roomID).Msg("left chat room")
}
