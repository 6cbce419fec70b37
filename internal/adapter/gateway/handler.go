package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/usecase"
)

// TurnRunner is the part of the agent the gateway drives.
type TurnRunner interface {
	RunTurn(ctx context.Context, req usecase.TurnRequest) (*usecase.TurnResult, error)
	Stop() bool
	RecordFeedback(turnID string, success bool) error
}

// ScoreSource exposes learned routing scores.
type ScoreSource interface {
	Scores() map[string]domain.AgentScore
}

// HandlerDeps holds dependencies needed by RPC handlers.
type HandlerDeps struct {
	Agent  TurnRunner
	Router ScoreSource // can be nil
	Bus    domain.EventBus
	// Tools is the capability set shared by every session; each session
	// adds its own attachment store.
	Tools              domain.ToolContext
	MaxHistoryMessages int
	Logger             *slog.Logger
}

type chatSession struct {
	session     *usecase.Session
	attachments *usecase.MemoryAttachmentStore
}

// Sessions keeps gateway conversations by id.
type Sessions struct {
	mu    sync.Mutex
	items map[string]*chatSession
}

func newSessions() *Sessions {
	return &Sessions{items: make(map[string]*chatSession)}
}

func (s *Sessions) get(id string) (string, *chatSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if cs, ok := s.items[id]; ok {
			return id, cs
		}
	}
	cs := &chatSession{session: usecase.NewSession(), attachments: usecase.NewMemoryAttachmentStore()}
	if id == "" {
		id = cs.session.ID
	}
	s.items[id] = cs
	return id, cs
}

func (s *Sessions) drop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	delete(s.items, id)
	return ok
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Reap drops sessions idle for longer than maxIdle and returns how many
// were removed.
func (s *Sessions) Reap(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, cs := range s.items {
		if cs.session.LastActive().Before(cutoff) {
			delete(s.items, id)
			n++
		}
	}
	return n
}

// RegisterDefaultHandlers registers the built-in RPC methods and returns
// the session table they share.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) *Sessions {
	store := newSessions()

	s.RegisterHandler("chat.send", chatSendHandler(deps, store))
	s.RegisterHandler("chat.stop", chatStopHandler(deps))
	s.RegisterHandler("chat.feedback", chatFeedbackHandler(deps))
	s.RegisterHandler("chat.reset", chatResetHandler(store))
	s.RegisterHandler("attachments.add", attachmentAddHandler(store))
	s.RegisterHandler("events.snapshot", eventsSnapshotHandler(deps))
	s.RegisterHandler("router.scores", routerScoresHandler(deps))
	return store
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return domain.NewDomainError("gateway.decode", domain.ErrRPCInvalidPayload, "empty payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return domain.NewDomainError("gateway.decode", domain.ErrRPCInvalidPayload, err.Error())
	}
	return nil
}

type chatSendRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type chatSendResponse struct {
	SessionID string `json:"session_id"`
	*usecase.TurnResult
}

func chatSendHandler(deps HandlerDeps, store *Sessions) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req chatSendRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.Message) == "" {
			return nil, domain.NewDomainError("chat.send", domain.ErrRPCInvalidPayload, "message is required")
		}

		id, cs := store.get(req.SessionID)
		history := cs.session.Messages()
		history = append(history, domain.Message{Role: domain.RoleUser, Content: req.Message})

		tools := deps.Tools
		tools.Attachments = cs.attachments
		res, err := deps.Agent.RunTurn(ctx, usecase.TurnRequest{
			Messages: history,
			Tools:    tools,
			Recent:   cs.session.RecentSkills(),
		})
		if res == nil {
			return nil, err
		}

		// The user message is kept only once the turn has produced an answer.
		if res.Status != domain.TurnCancelled {
			cs.session.AddMessage(domain.Message{Role: domain.RoleUser, Content: req.Message})
			cs.session.Record(res)
			if deps.MaxHistoryMessages > 0 {
				cs.session.Truncate(deps.MaxHistoryMessages)
			}
		}
		if err != nil && res.Status != domain.TurnFailed {
			return nil, err
		}
		return chatSendResponse{SessionID: id, TurnResult: res}, nil
	}
}

func chatStopHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (any, error) {
		return map[string]bool{"stopped": deps.Agent.Stop()}, nil
	}
}

type feedbackRequest struct {
	TurnID  string `json:"turn_id"`
	Success bool   `json:"success"`
}

func chatFeedbackHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req feedbackRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if err := deps.Agent.RecordFeedback(req.TurnID, req.Success); err != nil {
			return nil, err
		}
		return map[string]bool{"recorded": true}, nil
	}
}

func chatResetHandler(store *Sessions) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return map[string]bool{"reset": store.drop(req.SessionID)}, nil
	}
}

type attachmentRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	Data      string `json:"data"` // base64
}

func attachmentAddHandler(store *Sessions) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req attachmentRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return nil, domain.NewDomainError("attachments.add", domain.ErrRPCInvalidPayload, fmt.Sprintf("data: %v", err))
		}
		if len(data) == 0 {
			return nil, domain.NewDomainError("attachments.add", domain.ErrRPCInvalidPayload, "data is empty")
		}

		id, cs := store.get(req.SessionID)
		att := domain.Attachment{
			ID:       ulid.Make().String(),
			Name:     req.Name,
			MimeType: req.MimeType,
			Data:     data,
		}
		cs.attachments.Set(att)
		return map[string]string{"session_id": id, "attachment_id": att.ID}, nil
	}
}

func eventsSnapshotHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (any, error) {
		return deps.Bus.Snapshot(), nil
	}
}

func routerScoresHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (any, error) {
		if deps.Router == nil {
			return map[string]domain.AgentScore{}, nil
		}
		return deps.Router.Scores(), nil
	}
}
