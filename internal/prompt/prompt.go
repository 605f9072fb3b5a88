// Package prompt assembles the completion input: system instructions,
// knowledge excerpt, bounded conversation context and the current user
// message, under a configured size budget.
package prompt

import (
	"fmt"

	"github.com/vanilka-ai/bento-assistant/internal/llm"
	"github.com/vanilka-ai/bento-assistant/internal/model"
)

// DefaultSystemTemplate is the store persona. The knowledge document is
// substituted into the single %s.
const DefaultSystemTemplate = `Ты — дружелюбный AI-администратор магазина бенто-тортов "Ванилька".
Твоя задача — помогать клиентам с информацией о продукции, ценах, графике работы и условиях заказа.

Правила общения:
- Будь вежливым, дружелюбным и профессиональным
- Отвечай только на вопросы, связанные с магазином и его продукцией
- Если вопрос не касается магазина, вежливо перенаправь разговор на тему тортов
- Используй эмодзи для создания дружелюбной атмосферы 🎂
- Если не знаешь ответа, предложи связаться с магазином напрямую

Информация о магазине:
%s`

// NoKnowledgePlaceholder is substituted when no snapshot is available.
const NoKnowledgePlaceholder = "Информация о магазине пока не загружена."

// Builder assembles completion message lists under a size budget.
type Builder struct {
	// SystemTemplate must contain one %s for the knowledge excerpt.
	SystemTemplate string
	// CharBudget bounds the total content size of the assembled
	// messages. The system message and the current user message are
	// never dropped, even if they alone exceed the budget; history
	// turns are dropped oldest first to fit.
	CharBudget int
	// KnowledgeMaxChars clips the knowledge excerpt before it enters
	// the system message.
	KnowledgeMaxChars int
}

// NewBuilder returns a builder with the default persona template.
func NewBuilder(charBudget, knowledgeMaxChars int) *Builder {
	return &Builder{
		SystemTemplate:    DefaultSystemTemplate,
		CharBudget:        charBudget,
		KnowledgeMaxChars: knowledgeMaxChars,
	}
}

// Build assembles the message list: system instructions first, then the
// surviving history oldest first, then the current user message.
func (b *Builder) Build(knowledge string, turns []model.Turn, userMessage string) []llm.ChatMessage {
	excerpt := clipRunes(knowledge, b.KnowledgeMaxChars)
	if excerpt == "" {
		excerpt = NoKnowledgePlaceholder
	}
	system := fmt.Sprintf(b.SystemTemplate, excerpt)

	// The system message and current user message are inviolate; the
	// remaining budget goes to history, newest turns kept first.
	budget := b.CharBudget - len([]rune(system)) - len([]rune(userMessage))

	kept := 0
	for i := len(turns) - 1; i >= 0; i-- {
		cost := len([]rune(turns[i].Content))
		if cost > budget {
			break
		}
		budget -= cost
		kept++
	}

	messages := make([]llm.ChatMessage, 0, kept+2)
	messages = append(messages, llm.ChatMessage{Role: "system", Content: system})
	for _, t := range turns[len(turns)-kept:] {
		messages = append(messages, llm.ChatMessage{Role: string(t.Role), Content: t.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: userMessage})

	return messages
}

func clipRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
