package prompt

import (
	"strings"
	"testing"

	"github.com/vanilka-ai/bento-assistant/internal/model"
)

func turn(role model.Role, content string) model.Turn {
	return model.Turn{Role: role, Content: content}
}

func totalRunes(b *Builder, knowledge string, turns []model.Turn, userMessage string) int {
	total := 0
	for _, m := range b.Build(knowledge, turns, userMessage) {
		total += len([]rune(m.Content))
	}
	return total
}

func TestBuildShape(t *testing.T) {
	b := NewBuilder(10000, 8000)
	turns := []model.Turn{
		turn(model.RoleUser, "привет"),
		turn(model.RoleAssistant, "Здравствуйте! 🎂"),
	}

	messages := b.Build("Бенто-торт 1кг — 2500₽", turns, "Сколько стоит торт на 1кг?")

	if len(messages) != 4 {
		t.Fatalf("Build() = %d messages, want 4", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", messages[0].Role)
	}
	if !strings.Contains(messages[0].Content, "Бенто-торт 1кг — 2500₽") {
		t.Errorf("system message missing knowledge excerpt")
	}
	if messages[1].Content != "привет" || messages[2].Content != "Здравствуйте! 🎂" {
		t.Errorf("history out of order: %q, %q", messages[1].Content, messages[2].Content)
	}
	last := messages[len(messages)-1]
	if last.Role != "user" || last.Content != "Сколько стоит торт на 1кг?" {
		t.Errorf("last message = %+v, want current user message", last)
	}
}

func TestEmptyKnowledgeUsesPlaceholder(t *testing.T) {
	b := NewBuilder(10000, 8000)

	messages := b.Build("", nil, "вопрос")

	if !strings.Contains(messages[0].Content, NoKnowledgePlaceholder) {
		t.Errorf("system message missing placeholder for empty knowledge")
	}
}

func TestKnowledgeClipped(t *testing.T) {
	b := NewBuilder(100000, 10)

	messages := b.Build(strings.Repeat("я", 50), nil, "вопрос")

	if strings.Contains(messages[0].Content, strings.Repeat("я", 11)) {
		t.Errorf("knowledge excerpt not clipped to limit")
	}
	if !strings.Contains(messages[0].Content, strings.Repeat("я", 10)) {
		t.Errorf("clipped knowledge excerpt missing")
	}
}

func TestOldestTurnsDroppedFirst(t *testing.T) {
	b := NewBuilder(0, 0)
	// Budget only fits system + user message + the two newest turns.
	system := b.Build("kb", nil, "msg")[0].Content
	b.CharBudget = len([]rune(system)) + len([]rune("msg")) + 8

	turns := []model.Turn{
		turn(model.RoleUser, "old1"),
		turn(model.RoleAssistant, "old2"),
		turn(model.RoleUser, "new1"),
		turn(model.RoleAssistant, "new2"),
	}

	messages := b.Build("kb", turns, "msg")

	if len(messages) != 4 {
		t.Fatalf("Build() = %d messages, want system + 2 newest turns + user", len(messages))
	}
	if messages[1].Content != "new1" || messages[2].Content != "new2" {
		t.Errorf("kept turns = %q, %q; want the newest pair", messages[1].Content, messages[2].Content)
	}
}

func TestSystemAndUserMessageSurviveTinyBudget(t *testing.T) {
	b := NewBuilder(1, 0)
	turns := []model.Turn{
		turn(model.RoleUser, "history"),
	}

	messages := b.Build("kb", turns, "текущий вопрос")

	if len(messages) != 2 {
		t.Fatalf("Build() = %d messages, want system + user only", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("system message dropped under tiny budget")
	}
	if messages[1].Content != "текущий вопрос" {
		t.Errorf("current user message dropped under tiny budget")
	}
}

func TestBudgetRespectedWithLongHistory(t *testing.T) {
	b := NewBuilder(0, 0)
	system := b.Build("kb", nil, "msg")[0].Content
	base := len([]rune(system)) + len([]rune("msg"))
	b.CharBudget = base + 100

	var turns []model.Turn
	for i := 0; i < 50; i++ {
		turns = append(turns, turn(model.RoleUser, strings.Repeat("x", 30)))
	}

	if got := totalRunes(b, "kb", turns, "msg"); got > b.CharBudget {
		t.Errorf("assembled context %d runes exceeds budget %d", got, b.CharBudget)
	}
}
