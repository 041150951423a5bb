package stub

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/medichat/internal/chat"
	"github.com/vovakirdan/medichat/internal/collab"
	"github.com/vovakirdan/medichat/internal/proto"
	"github.com/vovakirdan/medichat/internal/utils"
)

const contextKeyUser = "user"

// identityMiddleware resolves the caller from the bearer token, falling
// back to an anonymous participant. The stub never verifies signatures.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := chat.Participant{ID: "anonymous", Name: "Anonymous", Role: chat.RolePatient}
		if auth := c.GetHeader("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			if u, err := collab.UserFromToken(auth[7:]); err == nil {
				user = u
			}
		}
		c.Set(contextKeyUser, user)
		c.Next()
	}
}

func loggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func currentUser(c *gin.Context) chat.Participant {
	return c.MustGet(contextKeyUser).(chat.Participant)
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) getConsultation(c *gin.Context) {
	s.mu.Lock()
	consultation, ok := s.consultations[c.Param("id")]
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "consultation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "consultation": consultation})
}

func (s *Server) getHistory(c *gin.Context) {
	s.mu.Lock()
	r, ok := s.rooms[c.Param("id")]
	var msgs []proto.MessagePayload
	if ok {
		msgs = make([]proto.MessagePayload, len(r.messages))
		copy(msgs, r.messages)
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat room not found"})
		return
	}
	if msgs == nil {
		msgs = []proto.MessagePayload{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

type postMessageRequest struct {
	Content string `json:"content" binding:"required"`
	Type    string `json:"message_type"`
	FileURL string `json:"file_url"`
}

func (s *Server) postMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Type == "" {
		req.Type = string(chat.KindText)
	}
	user := currentUser(c)

	s.mu.Lock()
	r, ok := s.rooms[c.Param("id")]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat room not found"})
		return
	}

	msg := proto.MessagePayload{
		ID:         uuid.NewString(),
		ChatRoomID: r.id,
		SenderID:   user.ID,
		SenderType: string(user.Role),
		Type:       req.Type,
		Content:    req.Content,
		FileURL:    req.FileURL,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		ReadBy:     []string{user.ID},
	}
	r.messages = append(r.messages, msg)

	data, _ := json.Marshal(msg)
	s.broadcast(r, proto.Outbound{Event: proto.EventNewMessage, Data: data})
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "message_id": msg.ID})
}

func (s *Server) postUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing file"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read file"})
		return
	}

	roomID := c.Param("id")
	fileURL := "/files/" + roomID + "/" + header.Filename

	s.mu.Lock()
	if _, ok := s.rooms[roomID]; !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat room not found"})
		return
	}
	s.files[fileURL] = content
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"filename": header.Filename,
		"file_url": fileURL,
	})
}

func (s *Server) getFile(c *gin.Context) {
	s.mu.Lock()
	content, ok := s.files["/files/"+c.Param("room")+"/"+c.Param("name")]
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "file not found"})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", content)
}

func (s *Server) handshake(c *gin.Context) {
	if c.Request.ContentLength > 0 {
		var req proto.HandshakeData
		if err := c.ShouldBindJSON(&req); err != nil || req.Version != proto.ProtocolVersion {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported protocol version"})
			return
		}
	}

	sess := &session{
		id:     utils.NewID(),
		user:   currentUser(c),
		rooms:  make(map[string]struct{}),
		events: make(chan proto.Outbound, sessionBuffer),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"sid": sess.id})
}

func (s *Server) poll(c *gin.Context) {
	s.mu.Lock()
	sess, ok := s.sessions[c.Query("sid")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusGone, ErrorResponse{Error: "unknown session"})
		return
	}

	batch := []proto.Outbound{}
	timer := time.NewTimer(s.pollWait)
	defer timer.Stop()

	select {
	case out := <-sess.events:
		batch = append(batch, out)
		// drain whatever else is queued without waiting
		for {
			select {
			case out := <-sess.events:
				batch = append(batch, out)
				continue
			default:
			}
			break
		}
	case <-timer.C:
	case <-c.Request.Context().Done():
		return
	}

	c.JSON(http.StatusOK, batch)
}

func (s *Server) emit(c *gin.Context) {
	s.mu.Lock()
	sess, ok := s.sessions[c.Query("sid")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusGone, ErrorResponse{Error: "unknown session"})
		return
	}

	var in proto.Inbound
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid envelope"})
		return
	}

	switch in.Type {
	case proto.InboundTypeJoin:
		s.handleJoin(sess, in.Data)
	case proto.InboundTypeLeave:
		s.handleLeave(sess, in.Data)
	case proto.InboundTypeTyping:
		s.handleTyping(sess, in.Data)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown type"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleJoin(sess *session, data json.RawMessage) {
	var req proto.JoinData
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[req.RoomID]
	if !ok {
		payload, _ := json.Marshal(proto.ErrorPayload{Message: "Access denied to this chat room"})
		select {
		case sess.events <- proto.Outbound{Event: proto.EventError, Data: payload}:
		default:
		}
		return
	}

	r.members[sess.id] = sess
	sess.rooms[req.RoomID] = struct{}{}

	payload, _ := json.Marshal(proto.PresencePayload{UserID: sess.user.ID})
	s.broadcast(r, proto.Outbound{Event: proto.EventUserJoined, Data: payload})
}

func (s *Server) handleLeave(sess *session, data json.RawMessage) {
	var req proto.JoinData
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[req.RoomID]
	if !ok {
		return
	}
	delete(r.members, sess.id)
	delete(sess.rooms, req.RoomID)

	payload, _ := json.Marshal(proto.PresencePayload{UserID: sess.user.ID})
	s.broadcast(r, proto.Outbound{Event: proto.EventUserLeft, Data: payload})
}

func (s *Server) handleTyping(sess *session, data json.RawMessage) {
	var req proto.TypingData
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[req.RoomID]
	if !ok {
		return
	}

	payload, _ := json.Marshal(proto.TypingPayload{UserID: sess.user.ID, Typing: req.Typing})
	s.broadcast(r, proto.Outbound{Event: proto.EventUserTyping, Data: payload})
}

func (s *Server) closeSession(c *gin.Context) {
	sid := c.Query("sid")

	s.mu.Lock()
	sess, ok := s.sessions[sid]
	if ok {
		for roomID := range sess.rooms {
			if r, found := s.rooms[roomID]; found {
				delete(r.members, sid)
				payload, _ := json.Marshal(proto.PresencePayload{UserID: sess.user.ID})
				s.broadcast(r, proto.Outbound{Event: proto.EventUserLeft, Data: payload})
			}
		}
		delete(s.sessions, sid)
	}
	s.mu.Unlock()

	c.Status(http.StatusNoContent)
}
