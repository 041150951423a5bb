package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/medichat/internal/chat"
	"github.com/vovakirdan/medichat/internal/proto"
)

// Consultation is the booking collaborator's view of a consultation. Only
// the chat room binding matters to the chat core; an empty ChatRoomID means
// chat is unavailable for this consultation.
type Consultation struct {
	ID          string `json:"id"`
	ChatRoomID  string `json:"chat_room_id"`
	PatientName string `json:"patient_name"`
	DoctorName  string `json:"doctor_name"`
	Status      string `json:"status"`
}

// UploadResult describes a stored chat attachment.
type UploadResult struct {
	Filename string
	FileURL  string
}

// Client talks to the portal's backend collaborators: message store, file
// storage, and consultation lookup.
type Client struct {
	base  string
	token string
	http  *http.Client
	log   *zerolog.Logger
}

// NewClient builds a collaborator client for the given API base URL.
func NewClient(base, token string, logger *zerolog.Logger) *Client {
	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{},
		log:   logger,
	}
}

type historyResponse struct {
	Success  bool                   `json:"success"`
	Messages []proto.MessagePayload `json:"messages"`
	Error    string                 `json:"error,omitempty"`
}

// History fetches the room's message history, oldest first.
func (c *Client) History(ctx context.Context, roomID string) ([]chat.Message, error) {
	var body historyResponse
	if err := c.get(ctx, "/api/chat/rooms/"+roomID+"/messages", &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("load history: %s", orUnknown(body.Error))
	}

	msgs := make([]chat.Message, len(body.Messages))
	for i, p := range body.Messages {
		msgs[i] = p.Model()
	}
	return msgs, nil
}

type submitRequest struct {
	Content string `json:"content"`
	Type    string `json:"message_type"`
	FileURL string `json:"file_url,omitempty"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Submit dispatches one message to the message store. A rejected submission
// comes back as a CoreError carrying the server's error text.
func (c *Client) Submit(ctx context.Context, roomID, content string, kind chat.Kind, fileURL string) error {
	payload, err := json.Marshal(submitRequest{Content: content, Type: string(kind), FileURL: fileURL})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var body submitResponse
	if err := c.post(ctx, "/api/chat/rooms/"+roomID+"/messages", "application/json", bytes.NewReader(payload), &body); err != nil {
		return err
	}
	if !body.Success {
		return &chat.CoreError{Code: chat.ErrCodeSendFailed, Message: body.Error}
	}
	return nil
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	FileURL  string `json:"file_url"`
	Error    string `json:"error,omitempty"`
}

// Upload stores a chat attachment and returns its reference.
func (c *Client) Upload(ctx context.Context, roomID, filename string, r io.Reader) (UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create upload form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResult{}, fmt.Errorf("read upload file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("finalize upload form: %w", err)
	}

	var body uploadResponse
	if err := c.post(ctx, "/api/chat/rooms/"+roomID+"/upload", mw.FormDataContentType(), &buf, &body); err != nil {
		return UploadResult{}, err
	}
	if !body.Success {
		return UploadResult{}, &chat.CoreError{Code: chat.ErrCodeUploadFailed, Message: body.Error}
	}
	return UploadResult{Filename: body.Filename, FileURL: body.FileURL}, nil
}

type consultationResponse struct {
	Success      bool         `json:"success"`
	Consultation Consultation `json:"consultation"`
	Error        string       `json:"error,omitempty"`
}

// Consultation looks up the consultation binding, including its chat room.
func (c *Client) Consultation(ctx context.Context, id string) (Consultation, error) {
	var body consultationResponse
	if err := c.get(ctx, "/api/consultations/"+id, &body); err != nil {
		return Consultation{}, err
	}
	if !body.Success {
		return Consultation{}, fmt.Errorf("load consultation: %s", orUnknown(body.Error))
	}
	return body.Consultation, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown error"
	}
	return s
}
