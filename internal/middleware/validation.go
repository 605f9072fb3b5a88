package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateUserID validates a chat-platform user ID.
func ValidateUserID(id string) error {
	if len(id) == 0 {
		return errors.New("user ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("user ID exceeds maximum length")
	}
	return nil
}

// ValidateMessageContent validates inbound message text.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateBroadcastText validates admin broadcast text.
func ValidateBroadcastText(text string) error {
	if len(text) == 0 {
		return errors.New("broadcast text cannot be empty")
	}
	if len(text) > 4096 {
		return errors.New("broadcast text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("broadcast text must be valid UTF-8")
	}
	return nil
}

// ValidateAudio validates a voice payload.
func ValidateAudio(audio []byte, format string) error {
	if len(audio) == 0 {
		return errors.New("audio payload cannot be empty")
	}
	if len(audio) > 25*1024*1024 { // transcription API limit
		return errors.New("audio payload exceeds maximum size")
	}
	switch format {
	case "ogg", "oga", "mp3", "wav", "m4a", "webm":
		return nil
	default:
		return errors.New("unsupported audio format")
	}
}
