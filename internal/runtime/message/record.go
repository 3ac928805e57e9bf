package message

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/dagflow/internal/runtime/jsoncodec"
)

var (
	sensitiveKeys = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^password`),
		regexp.MustCompile(`(?i)^pwd`),
		regexp.MustCompile(`(?i)^pin$`),
		regexp.MustCompile(`(?i)^pan$`),
		regexp.MustCompile(`(?i)^cvc`),
	}
	sensitiveValues = []*regexp.Regexp{
		regexp.MustCompile(`^[0-9]{16}`),
		regexp.MustCompile(`^[0-9]{4}-[0-9]{4}-[0-9]{4}-[0-9]{4}`),
	}
)

// Sanitize redacts sensitive entries of map payloads. A value is redacted
// when its key or its printed form matches a sensitive pattern and is replaced
// by the first 16 hex characters of sha256(salt + value). Payloads that are
// not string keyed maps are returned untouched, including strings that may
// hold sensitive text.
func Sanitize(payload any, salt string) any {
	switch p := payload.(type) {
	case map[string]any:
		out := make(map[string]any, len(p))
		for k, v := range p {
			if redacted, ok := redact(k, fmt.Sprint(v), salt); ok {
				out[k] = redacted
				continue
			}
			out[k] = v
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(p))
		for k, v := range p {
			if redacted, ok := redact(k, v, salt); ok {
				out[k] = redacted
				continue
			}
			out[k] = v
		}
		return out
	default:
		return payload
	}
}

func redact(key, value, salt string) (string, bool) {
	if !isSensitive(key, value) {
		return "", false
	}
	sum := sha256.Sum256([]byte(salt + value))
	return hex.EncodeToString(sum[:])[:16], true
}

func isSensitive(key, value string) bool {
	for _, re := range sensitiveKeys {
		if re.MatchString(key) {
			return true
		}
	}
	for _, re := range sensitiveValues {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// Record renders the sanitized payload for a trace event: protojson for proto
// messages, JSON for everything else, and fmt.Sprint when encoding fails.
func Record(payload any, salt string) string {
	sanitized := Sanitize(payload, salt)
	if pm, ok := sanitized.(proto.Message); ok {
		if b, err := protojson.Marshal(pm); err == nil {
			return string(b)
		}
		return fmt.Sprint(sanitized)
	}
	s, err := jsoncodec.MarshalString(sanitized)
	if err != nil {
		return fmt.Sprint(sanitized)
	}
	return s
}
