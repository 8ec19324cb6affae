package openai

import (
	"errors"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/harunnryd/resep/pkg/resilience"
)

// mapError turns 429s into RateLimitError and other client errors into
// permanent failures so retry policies give up on them.
func mapError(provider string, err error) error {
	status := 0
	msg := err.Error()
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		msg = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusTooManyRequests:
		return resilience.RateLimitError{Provider: provider, Message: msg}
	case status >= 400 && status < 500 && status != http.StatusRequestTimeout:
		return resilience.Permanent(err)
	}
	return err
}
