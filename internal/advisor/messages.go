package advisor

import (
	"errors"
	"fmt"

	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/langdetect"
)

// messages are the user-facing replies that do not come from the chat model.
type messages struct {
	NoMatch          string
	DataUnavailable  string
	Inconsistent     string // %d embeddings, %d catalog rows
	ModelUnavailable string
	ChatUnavailable  string
	ChatFailed       string
	Timeout          string
	InvalidInput     string // %s reason
	Generic          string
}

var localized = map[langdetect.Locale]messages{
	langdetect.Estonian: {
		NoMatch:          "Sobivaid kursusi ei leitud praeguste filtritega.",
		DataUnavailable:  "Kursuste andmed pole laaditud. Käivita esmalt embeddingute koostaja (cmd/embed).",
		Inconsistent:     "Embeddingute (%d) ja andmestiku (%d) ridade arv ei klapi. Käivita embeddingute koostaja uuesti.",
		ModelUnavailable: "Otsingumudel pole praegu saadaval. Proovi hiljem uuesti.",
		ChatUnavailable:  "Keelemudeli API võti on seadistamata.",
		ChatFailed:       "Vastuse koostamine ebaõnnestus. Proovi uuesti.",
		Timeout:          "Vastuse koostamine võttis liiga kaua aega. Proovi uuesti.",
		InvalidInput:     "Päring on vigane: %s",
		Generic:          "Midagi läks valesti. Proovi uuesti.",
	},
	langdetect.English: {
		NoMatch:          "No courses matched the current filters.",
		DataUnavailable:  "Course data is not loaded. Run the embedding builder (cmd/embed) first.",
		Inconsistent:     "The embedding count (%d) does not match the catalog row count (%d). Run the embedding builder again.",
		ModelUnavailable: "The search model is unavailable right now. Please try again later.",
		ChatUnavailable:  "No language model API key is configured.",
		ChatFailed:       "Composing the answer failed. Please try again.",
		Timeout:          "Composing the answer took too long. Please try again.",
		InvalidInput:     "Invalid request: %s",
		Generic:          "Something went wrong. Please try again.",
	},
}

func messagesFor(locale langdetect.Locale) messages {
	if m, ok := localized[locale]; ok {
		return m
	}
	return localized[langdetect.Default]
}

// userMessage picks the reply for a failed turn.
func (m messages) userMessage(err error) string {
	var ce *domerrors.ConsistencyError
	var ve *domerrors.ValidationError
	switch {
	case errors.As(err, &ce):
		return fmt.Sprintf(m.Inconsistent, ce.Embeddings, ce.Records)
	case errors.Is(err, domerrors.ErrDataUnavailable):
		return m.DataUnavailable
	case errors.As(err, &ve):
		return fmt.Sprintf(m.InvalidInput, ve.Message)
	case errors.Is(err, errChatUnavailable):
		return m.ChatUnavailable
	case errors.Is(err, errChatFailed):
		return m.ChatFailed
	case errors.Is(err, domerrors.ErrModelUnavailable):
		return m.ModelUnavailable
	case errors.Is(err, domerrors.ErrTimeout):
		return m.Timeout
	default:
		return m.Generic
	}
}
