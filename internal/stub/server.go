// Package stub emulates the portal's backend collaborators — message store,
// file storage, consultation lookup, and the long-poll event channel — so
// the chat client can be exercised without the real backend.
package stub

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/medichat/internal/chat"
	"github.com/vovakirdan/medichat/internal/collab"
	"github.com/vovakirdan/medichat/internal/proto"
)

const (
	defaultPollWait = 20 * time.Second
	sessionBuffer   = 32
)

// Server holds the in-memory collaborator state.
type Server struct {
	log      *zerolog.Logger
	pollWait time.Duration

	mu            sync.Mutex
	sessions      map[string]*session
	rooms         map[string]*room
	consultations map[string]collab.Consultation
	files         map[string][]byte
}

type session struct {
	id     string
	user   chat.Participant
	rooms  map[string]struct{}
	events chan proto.Outbound
}

type room struct {
	id       string
	messages []proto.MessagePayload
	members  map[string]*session
}

// New builds a stub seeded with one demo consultation bound to a chat room.
func New(logger *zerolog.Logger) *Server {
	s := &Server{
		log:           logger,
		pollWait:      defaultPollWait,
		sessions:      make(map[string]*session),
		rooms:         make(map[string]*room),
		consultations: make(map[string]collab.Consultation),
		files:         make(map[string][]byte),
	}

	s.consultations["demo"] = collab.Consultation{
		ID:          "demo",
		ChatRoomID:  "room-demo",
		PatientName: "Alice Carter",
		DoctorName:  "Dr. Bram Osei",
		Status:      "accepted",
	}
	s.consultations["no-chat"] = collab.Consultation{
		ID:          "no-chat",
		PatientName: "Alice Carter",
		DoctorName:  "Dr. Bram Osei",
		Status:      "pending",
	}
	s.rooms["room-demo"] = newRoom("room-demo")

	return s
}

func newRoom(id string) *room {
	return &room{id: id, members: make(map[string]*session)}
}

// Router builds the gin engine with all collaborator routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), loggerMiddleware(s.log), identityMiddleware())

	api := r.Group("/api")
	api.GET("/consultations/:id", s.getConsultation)
	api.GET("/chat/rooms/:id/messages", s.getHistory)
	api.POST("/chat/rooms/:id/messages", s.postMessage)
	api.POST("/chat/rooms/:id/upload", s.postUpload)

	events := r.Group("/events")
	events.POST("/handshake", s.handshake)
	events.GET("/poll", s.poll)
	events.POST("/emit", s.emit)
	events.POST("/close", s.closeSession)

	r.GET("/files/:room/:name", s.getFile)

	return r
}

// broadcast queues an event on every member session of the room, dropping
// on slow consumers.
func (s *Server) broadcast(r *room, out proto.Outbound) {
	for _, member := range r.members {
		select {
		case member.events <- out:
		default:
			s.log.Warn().Str("sid", member.id).Msg("dropping event for slow session")
		}
	}
}
