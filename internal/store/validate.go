package store

import (
	"fmt"
	"strings"

	"supportdesk/internal/model"
)

func NormalizeClientName(clientName string) (string, error) {
	name := strings.TrimSpace(clientName)
	if name == "" {
		return "", fmt.Errorf("%w: clientName is required", ErrValidation)
	}
	return name, nil
}

func NormalizeMessage(content string, sender model.Sender) (string, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return "", fmt.Errorf("%w: content is required", ErrValidation)
	}
	if !sender.Valid() {
		return "", fmt.Errorf("%w: sender must be user or support", ErrValidation)
	}
	return text, nil
}

func ValidateStatus(status model.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: status must be active or resolved", ErrValidation)
	}
	return nil
}
