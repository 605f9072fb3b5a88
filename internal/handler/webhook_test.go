package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vanilka-ai/bento-assistant/internal/knowledge"
	"github.com/vanilka-ai/bento-assistant/internal/llm"
	"github.com/vanilka-ai/bento-assistant/internal/model"
	"github.com/vanilka-ai/bento-assistant/internal/orchestrator"
	"github.com/vanilka-ai/bento-assistant/internal/prompt"
	"github.com/vanilka-ai/bento-assistant/pkg/logger"
)

type stubStore struct{}

func (stubStore) Append(userID string, role model.Role, content string) (model.Turn, error) {
	return model.Turn{UserID: userID, Role: role, Content: content}, nil
}
func (stubStore) RecentTurns(userID string, limit int) ([]model.Turn, error) { return nil, nil }
func (stubStore) UpsertUser(userID, username string) error                   { return nil }
func (stubStore) UserIDs() ([]string, error)                                 { return nil, nil }

type stubKnowledge struct{}

func (stubKnowledge) Current() (knowledge.Snapshot, error) {
	return knowledge.Snapshot{}, knowledge.ErrKnowledgeUnavailable
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	return "текст", nil
}

type stubCompletion struct{}

func (stubCompletion) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: "ответ", Model: req.Model}, nil
}
func (stubCompletion) Name() string { return "stub" }

type stubOutbound struct {
	published chan *model.OutboundReply
}

func (o *stubOutbound) Publish(ctx context.Context, reply *model.OutboundReply) (uint64, error) {
	o.published <- reply
	return 1, nil
}

func newTestHandler(t *testing.T) (*WebhookHandler, *stubOutbound) {
	t.Helper()
	log := &logger.Logger{Logger: zap.NewNop()}
	out := &stubOutbound{published: make(chan *model.OutboundReply, 1)}
	orch := orchestrator.New(
		stubStore{},
		stubKnowledge{},
		stubTranscriber{},
		stubCompletion{},
		out,
		prompt.NewBuilder(12000, 8000),
		orchestrator.Config{MaxHistoryTurns: 20, CompletionModel: "gpt-4o-mini"},
		log,
	)
	return NewWebhookHandler(orch, log, 5*time.Second), out
}

func postEvent(t *testing.T, h *WebhookHandler, event interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

func TestWebhookAcceptsTextEvent(t *testing.T) {
	h, out := newTestHandler(t)

	rec := postEvent(t, h, model.InboundEvent{
		UserID: "100",
		Kind:   model.EventKindText,
		Text:   "привет",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	select {
	case reply := <-out.published:
		if reply.UserID != "100" || reply.Outcome != model.OutcomeCompleted {
			t.Errorf("published reply = %+v", reply)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply published")
	}
}

func TestWebhookIgnoresSystemEvent(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postEvent(t, h, model.InboundEvent{
		UserID: "100",
		Kind:   model.EventKindSystem,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestWebhookRejectsInvalidEvents(t *testing.T) {
	h, _ := newTestHandler(t)

	cases := []struct {
		name  string
		event model.InboundEvent
	}{
		{"missing user ID", model.InboundEvent{Kind: model.EventKindText, Text: "привет"}},
		{"empty text", model.InboundEvent{UserID: "100", Kind: model.EventKindText}},
		{"voice without audio", model.InboundEvent{UserID: "100", Kind: model.EventKindVoice, AudioFormat: "ogg"}},
		{"unsupported audio format", model.InboundEvent{UserID: "100", Kind: model.EventKindVoice, Audio: []byte{1}, AudioFormat: "exe"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postEvent(t, h, tc.event)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
