package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vanilka-ai/bento-assistant/internal/model"
)

// Broadcast publishes the given text to every known user. Individual
// publish failures do not abort the run; failed user IDs are collected
// in the result. Broadcast messages are delivery-only and are never
// written to conversation history.
func (o *Orchestrator) Broadcast(ctx context.Context, text string) (*model.BroadcastResult, error) {
	ids, err := o.store.UserIDs()
	if err != nil {
		return nil, err
	}

	result := &model.BroadcastResult{}
	for _, id := range ids {
		reply := &model.OutboundReply{
			ID:        uuid.New().String(),
			UserID:    id,
			Text:      text,
			Outcome:   model.OutcomeBroadcast,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := o.outbound.Publish(ctx, reply); err != nil {
			o.logger.Warn("broadcast publish failed",
				zap.String("user_id", id),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Recipients++
	}

	o.logger.Info("broadcast complete",
		zap.Int("recipients", result.Recipients),
		zap.Int("failed", len(result.Failed)),
	)

	return result, nil
}
