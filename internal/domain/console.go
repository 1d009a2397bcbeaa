package domain

import "context"

// HumanConsole is the human-input contract. WaitForResponse blocks until an
// operator supplies a reply; PrintMessage is display-only narration that is
// not part of the persisted conversation.
type HumanConsole interface {
	WaitForResponse(ctx context.Context, prompt string, visibleHistory []Turn) (string, error)
	PrintMessage(text, mimeType string)
}
