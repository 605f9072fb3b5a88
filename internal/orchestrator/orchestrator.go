// Package orchestrator coordinates one inbound message end to end:
// resolve it to text, assemble the bounded conversation context plus
// the current knowledge snapshot, invoke the completion client, persist
// the exchange and emit the outbound reply. Every failure is converted
// to either a normal reply or a fixed degraded reply; raw errors never
// reach the end user.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vanilka-ai/bento-assistant/internal/history"
	"github.com/vanilka-ai/bento-assistant/internal/knowledge"
	"github.com/vanilka-ai/bento-assistant/internal/llm"
	"github.com/vanilka-ai/bento-assistant/internal/model"
	"github.com/vanilka-ai/bento-assistant/internal/prompt"
	"github.com/vanilka-ai/bento-assistant/internal/transcribe"
	"github.com/vanilka-ai/bento-assistant/pkg/logger"
	"github.com/vanilka-ai/bento-assistant/pkg/metrics"
)

// Fixed customer-facing fallback replies. Raw errors are never
// surfaced to the user.
const (
	apologyTranscription = "Извините, не удалось распознать голосовое сообщение. Пожалуйста, отправьте ваш вопрос текстом."
	apologyCompletion    = "Извините, произошла ошибка при обработке вашего запроса. Пожалуйста, попробуйте позже."
	apologyRefused       = "Извините, я не могу ответить на этот вопрос. Пожалуйста, свяжитесь с магазином напрямую 🎂"
	emptyCompletion      = "Извините, не удалось сгенерировать ответ. Попробуйте ещё раз."
)

// publishTimeout bounds reply emission. Publication runs on its own
// deadline: a turn whose context was eaten by a hung provider still
// owes the user its apology.
const publishTimeout = 10 * time.Second

// TurnStore is the subset of the history store the orchestrator needs.
type TurnStore interface {
	Append(userID string, role model.Role, content string) (model.Turn, error)
	RecentTurns(userID string, limit int) ([]model.Turn, error)
	UpsertUser(userID, username string) error
	UserIDs() ([]string, error)
}

// KnowledgeSource supplies the current knowledge snapshot.
type KnowledgeSource interface {
	Current() (knowledge.Snapshot, error)
}

// Outbound publishes replies to the delivery transport.
type Outbound interface {
	Publish(ctx context.Context, reply *model.OutboundReply) (uint64, error)
}

// Config holds orchestrator tunables.
type Config struct {
	MaxHistoryTurns int
	CompletionModel string
}

// Orchestrator is the per-message pipeline.
type Orchestrator struct {
	store       TurnStore
	knowledge   KnowledgeSource
	transcriber transcribe.Transcriber
	completion  llm.Client
	outbound    Outbound
	builder     *prompt.Builder
	cfg         Config
	logger      *logger.Logger
	locks       *userLocks
}

// New creates an orchestrator.
func New(
	store TurnStore,
	knowledgeSrc KnowledgeSource,
	transcriber transcribe.Transcriber,
	completion llm.Client,
	outbound Outbound,
	builder *prompt.Builder,
	cfg Config,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:       store,
		knowledge:   knowledgeSrc,
		transcriber: transcriber,
		completion:  completion,
		outbound:    outbound,
		builder:     builder,
		cfg:         cfg,
		logger:      log,
		locks:       newUserLocks(),
	}
}

// Handle processes one inbound event to a terminal state. It returns
// the reply that was (or would be) delivered, or nil for events the
// orchestrator deliberately ignores. Turns for the same user are
// serialized; turns for different users proceed concurrently.
func (o *Orchestrator) Handle(ctx context.Context, event *model.InboundEvent) (*model.OutboundReply, error) {
	if event == nil || !event.Actionable() {
		return nil, nil
	}

	start := time.Now()

	// The lock covers resolution through persistence so a user's second
	// message never assembles context before the first one is written.
	// It is released before the reply is published.
	text, outcome := func() (string, model.ReplyOutcome) {
		mu := o.locks.get(event.UserID)
		mu.Lock()
		defer mu.Unlock()
		return o.process(ctx, event)
	}()

	metrics.TurnDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())

	reply := &model.OutboundReply{
		ID:        uuid.New().String(),
		UserID:    event.UserID,
		Text:      text,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}

	// Publish on a fresh context: ctx may already be past its deadline
	// (the completion call can consume all of it), and a degraded reply
	// must still reach the user.
	pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if _, err := o.outbound.Publish(pubCtx, reply); err != nil {
		// No recipient channel is available at this point; log and drop.
		o.logger.Error("failed to publish reply",
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
		return reply, err
	}

	return reply, nil
}

// process runs Resolved through Persisted under the per-user lock and
// returns the reply text plus its outcome.
func (o *Orchestrator) process(ctx context.Context, event *model.InboundEvent) (string, model.ReplyOutcome) {
	log := o.logger.With(zap.String("user_id", event.UserID))

	// Resolved: voice payloads become text, text passes through.
	text := event.Text
	if event.Kind == model.EventKindVoice {
		transcript, err := o.transcriber.Transcribe(ctx, event.Audio, event.AudioFormat)
		if err != nil {
			// Nothing to persist: no text exists for this event.
			log.Warn("transcription failed", zap.Error(err))
			return apologyTranscription, model.OutcomeDegraded
		}
		text = transcript
	}

	if err := o.store.UpsertUser(event.UserID, event.Username); err != nil {
		log.Warn("failed to upsert user", zap.Error(err))
	}

	// ContextAssembled: prior turns and the knowledge snapshot. A
	// missing snapshot degrades to an empty excerpt instead of failing
	// the turn.
	turns, err := o.store.RecentTurns(event.UserID, o.cfg.MaxHistoryTurns)
	if err != nil {
		log.Error("failed to read history", zap.Error(err))
		return apologyCompletion, model.OutcomeDegraded
	}

	var excerpt string
	if snap, err := o.knowledge.Current(); err != nil {
		if !errors.Is(err, knowledge.ErrKnowledgeUnavailable) {
			log.Warn("knowledge read failed", zap.Error(err))
		}
	} else {
		excerpt = snap.Content
	}

	// Completed: the retry policy lives inside the completion client.
	messages := o.builder.Build(excerpt, turns, text)
	resp, err := o.completion.Complete(ctx, &llm.CompletionRequest{
		Model:       o.cfg.CompletionModel,
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		// Keep the user's message in the log so the next attempt still
		// has it as context; no assistant turn is written.
		if _, appendErr := o.store.Append(event.UserID, model.RoleUser, text); appendErr != nil {
			log.Error("failed to persist user turn after completion failure", zap.Error(appendErr))
		}
		log.Warn("completion failed", zap.Error(err))
		if errors.Is(err, llm.ErrRefused) {
			return apologyRefused, model.OutcomeDegraded
		}
		return apologyCompletion, model.OutcomeDegraded
	}

	replyText := resp.Content
	if replyText == "" {
		replyText = emptyCompletion
	}

	metrics.RecordCompletion(resp.Model, "success", float64(resp.LatencyMs)/1000.0, resp.TokensIn, resp.TokensOut)

	// Persisted: user turn first, assistant turn second, preserving the
	// log ordering invariant.
	if _, err := o.store.Append(event.UserID, model.RoleUser, text); err != nil {
		log.Error("failed to persist user turn", zap.Error(err))
		return apologyCompletion, model.OutcomeDegraded
	}
	metrics.TurnsTotal.WithLabelValues(string(model.RoleUser)).Inc()

	if _, err := o.store.Append(event.UserID, model.RoleAssistant, replyText); err != nil {
		log.Error("failed to persist assistant turn", zap.Error(err))
		return apologyCompletion, model.OutcomeDegraded
	}
	metrics.TurnsTotal.WithLabelValues(string(model.RoleAssistant)).Inc()

	return replyText, model.OutcomeCompleted
}

// ResetHistory is the admin-triggered history reset passthrough,
// serialized against in-flight turns for the same user.
func (o *Orchestrator) ResetHistory(userID string, reset func(string) error) error {
	mu := o.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()
	return reset(userID)
}

var _ TurnStore = (*history.Store)(nil)
