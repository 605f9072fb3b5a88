package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vanilka-ai/bento-assistant/internal/knowledge"
	"github.com/vanilka-ai/bento-assistant/internal/llm"
	"github.com/vanilka-ai/bento-assistant/internal/model"
	"github.com/vanilka-ai/bento-assistant/internal/prompt"
	"github.com/vanilka-ai/bento-assistant/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return &logger.Logger{Logger: zap.NewNop()}
}

// memStore is an in-memory TurnStore for orchestrator tests.
type memStore struct {
	mu    sync.Mutex
	turns map[string][]model.Turn
	users map[string]string
	seq   int

	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		turns: make(map[string][]model.Turn),
		users: make(map[string]string),
	}
}

func (s *memStore) Append(userID string, role model.Role, content string) (model.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return model.Turn{}, s.appendErr
	}
	s.seq++
	turn := model.Turn{
		ID:        fmt.Sprintf("t-%d", s.seq),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.turns[userID] = append(s.turns[userID], turn)
	return turn, nil
}

func (s *memStore) RecentTurns(userID string, limit int) ([]model.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.turns[userID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]model.Turn, len(all))
	copy(out, all)
	return out, nil
}

func (s *memStore) UpsertUser(userID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = username
	return nil
}

func (s *memStore) UserIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) turnsFor(userID string) []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Turn, len(s.turns[userID]))
	copy(out, s.turns[userID])
	return out
}

// memKnowledge serves a fixed snapshot, or ErrKnowledgeUnavailable
// when empty.
type memKnowledge struct {
	content string
}

func (k *memKnowledge) Current() (knowledge.Snapshot, error) {
	if k.content == "" {
		return knowledge.Snapshot{}, knowledge.ErrKnowledgeUnavailable
	}
	return knowledge.Snapshot{Content: k.content, Version: "v1", LoadedAt: time.Now().UTC()}, nil
}

// memTranscriber returns a fixed transcript or a fixed error.
type memTranscriber struct {
	transcript string
	err        error
	calls      int
}

func (tr *memTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	tr.calls++
	if tr.err != nil {
		return "", tr.err
	}
	return tr.transcript, nil
}

// memCompletion replays a scripted sequence of errors then succeeds.
// It records every request it received.
type memCompletion struct {
	mu    sync.Mutex
	errs  []error
	reply string
	reqs  []*llm.CompletionRequest
	delay time.Duration
}

func (c *memCompletion) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	var err error
	if len(c.errs) > 0 {
		err = c.errs[0]
		c.errs = c.errs[1:]
	}
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{
		Content:   c.reply,
		Model:     req.Model,
		TokensIn:  10,
		TokensOut: 20,
	}, nil
}

func (c *memCompletion) Name() string { return "mem" }

func (c *memCompletion) requests() []*llm.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*llm.CompletionRequest, len(c.reqs))
	copy(out, c.reqs)
	return out
}

// memOutbound records published replies in order, along with the
// liveness of the context each publish arrived on.
type memOutbound struct {
	mu      sync.Mutex
	replies []*model.OutboundReply
	ctxErrs []error
	err     error
}

func (o *memOutbound) Publish(ctx context.Context, reply *model.OutboundReply) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return 0, o.err
	}
	o.replies = append(o.replies, reply)
	o.ctxErrs = append(o.ctxErrs, ctx.Err())
	return uint64(len(o.replies)), nil
}

func (o *memOutbound) published() []*model.OutboundReply {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*model.OutboundReply, len(o.replies))
	copy(out, o.replies)
	return out
}

func (o *memOutbound) publishCtxErrs() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]error, len(o.ctxErrs))
	copy(out, o.ctxErrs)
	return out
}

// stalledCompletion models a hung provider: it consumes the entire
// turn deadline before failing.
type stalledCompletion struct{}

func (stalledCompletion) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %v", llm.ErrTimeout, ctx.Err())
}

func (stalledCompletion) Name() string { return "stalled" }

type fixture struct {
	store       *memStore
	knowledge   *memKnowledge
	transcriber *memTranscriber
	completion  *memCompletion
	outbound    *memOutbound
	orch        *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       newMemStore(),
		knowledge:   &memKnowledge{content: "Бенто-торт 'Ваниль': 1500 руб. Доставка по городу."},
		transcriber: &memTranscriber{transcript: "сколько стоит бенто-торт?"},
		completion:  &memCompletion{reply: "Бенто-торт 'Ваниль' стоит 1500 рублей 🎂"},
		outbound:    &memOutbound{},
	}
	f.orch = New(
		f.store,
		f.knowledge,
		f.transcriber,
		f.completion,
		f.outbound,
		prompt.NewBuilder(12000, 8000),
		Config{MaxHistoryTurns: 20, CompletionModel: "gpt-4o-mini"},
		testLogger(t),
	)
	return f
}

func textEvent(userID, text string) *model.InboundEvent {
	return &model.InboundEvent{
		UserID:   userID,
		Username: "vera",
		Kind:     model.EventKindText,
		Text:     text,
	}
}

func TestHandleTextTurn(t *testing.T) {
	f := newFixture(t)

	reply, err := f.orch.Handle(context.Background(), textEvent("100", "сколько стоит бенто-торт?"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Outcome != model.OutcomeCompleted {
		t.Fatalf("outcome = %q, want completed", reply.Outcome)
	}
	if reply.Text != f.completion.reply {
		t.Fatalf("reply text = %q", reply.Text)
	}

	reqs := f.completion.requests()
	if len(reqs) != 1 {
		t.Fatalf("completion calls = %d, want 1", len(reqs))
	}
	msgs := reqs[0].Messages
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want system + user", len(msgs))
	}
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "Бенто-торт 'Ваниль'") {
		t.Errorf("system message missing knowledge: %q", msgs[0].Content)
	}
	if msgs[1].Role != "user" || msgs[1].Content != "сколько стоит бенто-торт?" {
		t.Errorf("user message = %+v", msgs[1])
	}

	turns := f.store.turnsFor("100")
	if len(turns) != 2 {
		t.Fatalf("persisted turns = %d, want 2", len(turns))
	}
	if turns[0].Role != model.RoleUser || turns[1].Role != model.RoleAssistant {
		t.Errorf("turn order = %q, %q", turns[0].Role, turns[1].Role)
	}

	published := f.outbound.published()
	if len(published) != 1 || published[0].Text != f.completion.reply {
		t.Fatalf("published = %+v", published)
	}
}

func TestHandleUsesHistoryAsContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.orch.Handle(ctx, textEvent("100", "привет")); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := f.orch.Handle(ctx, textEvent("100", "а доставка есть?")); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	reqs := f.completion.requests()
	if len(reqs) != 2 {
		t.Fatalf("completion calls = %d", len(reqs))
	}
	// Second request: system + first user turn + first assistant turn +
	// current user message.
	msgs := reqs[1].Messages
	if len(msgs) != 4 {
		t.Fatalf("second request messages = %d, want 4", len(msgs))
	}
	if msgs[1].Content != "привет" || msgs[1].Role != "user" {
		t.Errorf("history user turn = %+v", msgs[1])
	}
	if msgs[2].Role != "assistant" {
		t.Errorf("history assistant turn = %+v", msgs[2])
	}
	if msgs[3].Content != "а доставка есть?" {
		t.Errorf("current message = %+v", msgs[3])
	}
}

func TestHandleVoiceTurn(t *testing.T) {
	f := newFixture(t)

	reply, err := f.orch.Handle(context.Background(), &model.InboundEvent{
		UserID:      "100",
		Kind:        model.EventKindVoice,
		Audio:       []byte{0x4f, 0x67, 0x67},
		AudioFormat: "ogg",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Outcome != model.OutcomeCompleted {
		t.Fatalf("outcome = %q", reply.Outcome)
	}
	if f.transcriber.calls != 1 {
		t.Errorf("transcriber calls = %d", f.transcriber.calls)
	}

	turns := f.store.turnsFor("100")
	if len(turns) != 2 || turns[0].Content != f.transcriber.transcript {
		t.Fatalf("persisted user turn = %+v", turns)
	}
}

func TestHandleTranscriptionFailure(t *testing.T) {
	f := newFixture(t)
	f.transcriber.err = errors.New("decode error")

	reply, err := f.orch.Handle(context.Background(), &model.InboundEvent{
		UserID:      "100",
		Kind:        model.EventKindVoice,
		Audio:       []byte{0x00},
		AudioFormat: "ogg",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Outcome != model.OutcomeDegraded {
		t.Fatalf("outcome = %q, want degraded", reply.Outcome)
	}
	if reply.Text != apologyTranscription {
		t.Errorf("reply text = %q", reply.Text)
	}
	if len(f.completion.requests()) != 0 {
		t.Errorf("completion should not run after transcription failure")
	}
	if len(f.store.turnsFor("100")) != 0 {
		t.Errorf("nothing should be persisted, got %+v", f.store.turnsFor("100"))
	}
}

func TestHandleKnowledgeUnavailable(t *testing.T) {
	f := newFixture(t)
	f.knowledge.content = ""

	reply, err := f.orch.Handle(context.Background(), textEvent("100", "привет"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Outcome != model.OutcomeCompleted {
		t.Fatalf("outcome = %q, want completed without knowledge", reply.Outcome)
	}

	msgs := f.completion.requests()[0].Messages
	if !strings.Contains(msgs[0].Content, prompt.NoKnowledgePlaceholder) {
		t.Errorf("system message should carry the placeholder: %q", msgs[0].Content)
	}
}

func TestHandleCompletionFailure(t *testing.T) {
	f := newFixture(t)
	f.completion.errs = []error{llm.ErrUnavailable}

	reply, err := f.orch.Handle(context.Background(), textEvent("100", "привет"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Outcome != model.OutcomeDegraded {
		t.Fatalf("outcome = %q", reply.Outcome)
	}
	if reply.Text != apologyCompletion {
		t.Errorf("reply text = %q", reply.Text)
	}

	// The user's message is kept so a later retry still has context; no
	// assistant turn is written.
	turns := f.store.turnsFor("100")
	if len(turns) != 1 || turns[0].Role != model.RoleUser {
		t.Fatalf("persisted turns = %+v", turns)
	}
}

func TestHandleRefusedCompletion(t *testing.T) {
	f := newFixture(t)
	f.completion.errs = []error{llm.ErrRefused}

	reply, err := f.orch.Handle(context.Background(), textEvent("100", "опасный вопрос"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Outcome != model.OutcomeDegraded {
		t.Fatalf("outcome = %q", reply.Outcome)
	}
	if reply.Text != apologyRefused {
		t.Errorf("reply text = %q", reply.Text)
	}
	if len(f.completion.requests()) != 1 {
		t.Errorf("refused completions must not be retried by the orchestrator")
	}
}

func TestHandleEmptyCompletion(t *testing.T) {
	f := newFixture(t)
	f.completion.reply = ""

	reply, err := f.orch.Handle(context.Background(), textEvent("100", "привет"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Text != emptyCompletion {
		t.Errorf("reply text = %q", reply.Text)
	}
	if reply.Outcome != model.OutcomeCompleted {
		t.Errorf("outcome = %q", reply.Outcome)
	}
}

func TestApologyDeliveredAfterTurnDeadlineExpires(t *testing.T) {
	store := newMemStore()
	out := &memOutbound{}
	orch := New(
		store,
		&memKnowledge{content: "kb"},
		&memTranscriber{},
		stalledCompletion{},
		out,
		prompt.NewBuilder(12000, 8000),
		Config{MaxHistoryTurns: 20, CompletionModel: "gpt-4o-mini"},
		testLogger(t),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	reply, err := orch.Handle(ctx, textEvent("100", "привет"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Outcome != model.OutcomeDegraded {
		t.Fatalf("outcome = %q, want degraded", reply.Outcome)
	}
	if reply.Text != apologyCompletion {
		t.Errorf("reply text = %q", reply.Text)
	}

	// The turn context is dead by now; the apology must still go out,
	// carried by a live context.
	published := out.published()
	if len(published) != 1 {
		t.Fatalf("published = %d replies, want the apology", len(published))
	}
	if ctxErr := out.publishCtxErrs()[0]; ctxErr != nil {
		t.Errorf("reply published on an expired context: %v", ctxErr)
	}
}

func TestHandleIgnoresSystemEvents(t *testing.T) {
	f := newFixture(t)

	reply, err := f.orch.Handle(context.Background(), &model.InboundEvent{
		UserID: "100",
		Kind:   model.EventKindSystem,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != nil {
		t.Fatalf("system events must be dropped, got %+v", reply)
	}
	if len(f.outbound.published()) != 0 {
		t.Errorf("nothing should be published for system events")
	}
}

func TestHandleSerializesSameUser(t *testing.T) {
	f := newFixture(t)
	f.completion.delay = 20 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := f.orch.Handle(ctx, textEvent("100", fmt.Sprintf("вопрос %d", n))); err != nil {
				t.Errorf("Handle: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// Serialization means the second turn's completion request includes
	// both turns of the first exchange as context.
	reqs := f.completion.requests()
	if len(reqs) != 2 {
		t.Fatalf("completion calls = %d", len(reqs))
	}
	if len(reqs[0].Messages) != 2 {
		t.Errorf("first request saw %d messages, want 2", len(reqs[0].Messages))
	}
	if len(reqs[1].Messages) != 4 {
		t.Errorf("second request saw %d messages, want 4 (prior exchange present)", len(reqs[1].Messages))
	}

	turns := f.store.turnsFor("100")
	if len(turns) != 4 {
		t.Fatalf("persisted turns = %d, want 4", len(turns))
	}
	// Strict role alternation proves the exchanges did not interleave.
	for i, turn := range turns {
		want := model.RoleUser
		if i%2 == 1 {
			want = model.RoleAssistant
		}
		if turn.Role != want {
			t.Errorf("turn %d role = %q, want %q", i, turn.Role, want)
		}
	}
}

func TestBroadcast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"100", "200", "300"} {
		if err := f.store.UpsertUser(id, ""); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}

	result, err := f.orch.Broadcast(ctx, "Новинка: бенто-торт 'Фисташка' 🎂")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if result.Recipients != 3 {
		t.Errorf("recipients = %d, want 3", result.Recipients)
	}
	if len(result.Failed) != 0 {
		t.Errorf("failed = %v", result.Failed)
	}

	published := f.outbound.published()
	if len(published) != 3 {
		t.Fatalf("published = %d", len(published))
	}
	for _, reply := range published {
		if reply.Outcome != model.OutcomeBroadcast {
			t.Errorf("outcome = %q", reply.Outcome)
		}
	}

	// Broadcasts never touch conversation history.
	for _, id := range []string{"100", "200", "300"} {
		if n := len(f.store.turnsFor(id)); n != 0 {
			t.Errorf("user %s history = %d turns after broadcast", id, n)
		}
	}
}

func TestResetHistoryWaitsForInFlightTurn(t *testing.T) {
	f := newFixture(t)
	f.completion.delay = 30 * time.Millisecond
	ctx := context.Background()

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		f.orch.Handle(ctx, textEvent("100", "привет"))
		close(done)
	}()

	<-started
	time.Sleep(10 * time.Millisecond)

	var reset bool
	err := f.orch.ResetHistory("100", func(userID string) error {
		reset = true
		return nil
	})
	if err != nil {
		t.Fatalf("ResetHistory: %v", err)
	}
	if !reset {
		t.Fatal("reset callback not invoked")
	}

	<-done
}
