package providers

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

// RequireString reads a non empty string at path or returns a normalization
// error naming the missing field.
func RequireString(platform string, eventType string, payload core.Payload, path ...string) (string, error) {
	value := payload.String(path...)
	if value == "" {
		return "", core.NormalizationError(platform, eventType,
			fmt.Errorf("providers: %s is required", strings.Join(path, ".")))
	}
	return value, nil
}

// Plural renders "1 commit" or "3 commits".
func Plural(count int, singular string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %ss", count, singular)
}

// BranchFromRef strips the refs/heads/ or refs/tags/ prefix.
func BranchFromRef(ref string) string {
	ref = strings.TrimSpace(ref)
	for _, prefix := range []string{"refs/heads/", "refs/tags/"} {
		if strings.HasPrefix(ref, prefix) {
			return strings.TrimPrefix(ref, prefix)
		}
	}
	return ref
}

// FirstNonEmpty returns the first non blank value.
func FirstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
