package dlq

import (
	"strconv"
	"strings"

	"github.com/segmentio/kafka-go"
)

// RetryCountHeader carries how many DLQ replays a record has already been through
const RetryCountHeader = "dlq-retry-count"

// RetryCount reads the retry header. A missing or malformed header counts as 0.
func RetryCount(headers []kafka.Header) int {
	for _, h := range headers {
		if h.Key != RetryCountHeader {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(string(h.Value)))
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

// WithRetryCount returns a copy of headers with the retry header set to n
func WithRetryCount(headers []kafka.Header, n int) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+1)
	for _, h := range headers {
		if h.Key != RetryCountHeader {
			out = append(out, h)
		}
	}
	return append(out, kafka.Header{Key: RetryCountHeader, Value: []byte(strconv.Itoa(n))})
}
