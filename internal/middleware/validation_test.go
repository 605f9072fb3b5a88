package middleware

import (
	"strings"
	"testing"
)

func TestValidateUserID(t *testing.T) {
	if err := ValidateUserID(""); err == nil {
		t.Error("empty user ID should fail")
	}
	if err := ValidateUserID(strings.Repeat("9", 65)); err == nil {
		t.Error("oversized user ID should fail")
	}
	if err := ValidateUserID("123456789"); err != nil {
		t.Errorf("numeric user ID should pass: %v", err)
	}
}

func TestValidateMessageContent(t *testing.T) {
	if err := ValidateMessageContent(""); err == nil {
		t.Error("empty content should fail")
	}
	if err := ValidateMessageContent(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("invalid UTF-8 should fail")
	}
	if err := ValidateMessageContent("сколько стоит бенто-торт?"); err != nil {
		t.Errorf("cyrillic content should pass: %v", err)
	}
}

func TestValidateBroadcastText(t *testing.T) {
	if err := ValidateBroadcastText(""); err == nil {
		t.Error("empty broadcast should fail")
	}
	if err := ValidateBroadcastText(strings.Repeat("а", 5000)); err == nil {
		t.Error("oversized broadcast should fail")
	}
	if err := ValidateBroadcastText("Новинка недели 🎂"); err != nil {
		t.Errorf("normal broadcast should pass: %v", err)
	}
}

func TestValidateAudio(t *testing.T) {
	if err := ValidateAudio(nil, "ogg"); err == nil {
		t.Error("empty audio should fail")
	}
	if err := ValidateAudio([]byte{0x4f}, "exe"); err == nil {
		t.Error("unsupported format should fail")
	}
	if err := ValidateAudio([]byte{0x4f, 0x67, 0x67}, "ogg"); err != nil {
		t.Errorf("ogg audio should pass: %v", err)
	}
}
