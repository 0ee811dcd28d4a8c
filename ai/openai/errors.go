package openai

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/poiesic/lectern/core"
)

var statusCodePattern = regexp.MustCompile(`status code:?\s*(\d{3})`)

// classifyErr wraps a provider failure into core.ProviderError, marking
// rate limits and transport-level failures as retryable. The langchaingo
// client surfaces HTTP status only inside the error text, so the code is
// recovered from there when present.
func classifyErr(op string, err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	status := 0
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		status, _ = strconv.Atoi(m[1])
	}

	retryable := status == 429 || status >= 500 ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporarily unavailable")

	return &core.ProviderError{
		Op:         op,
		StatusCode: status,
		Retryable:  retryable,
		Err:        err,
	}
}
