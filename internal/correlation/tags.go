package correlation

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7/pkg/tags"
)

const (
	// MaxTags matches the object tag limit of S3 compatible stores.
	MaxTags = 10

	TagCorrelationID = "correlationId"
	TagResubmitCount = "resubmitCount"
)

// ValidateTags enforces the tag limit first so callers can tell capacity
// failures from malformed keys or values.
func ValidateTags(t map[string]string) error {
	if len(t) > MaxTags {
		return fmt.Errorf("%w: %d tags, max %d", ErrTagLimitExceeded, len(t), MaxTags)
	}
	if _, err := tags.NewTags(t, true); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTag, err)
	}
	return nil
}

// Remaining reports how many more distinct keys fit in t.
func Remaining(t map[string]string) int {
	return MaxTags - len(t)
}

// CheckCapacity fails when adding keys to t would exceed MaxTags. Keys
// already present are overwritten and cost nothing.
func CheckCapacity(t map[string]string, keys ...string) error {
	extra := 0
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := t[k]; ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		extra++
	}
	if len(t)+extra > MaxTags {
		return fmt.Errorf("%w: %d existing + %d new, max %d", ErrTagLimitExceeded, len(t), extra, MaxTags)
	}
	return nil
}

// WithCorrelation merges the correlation tag into a copy of existing.
func WithCorrelation(existing map[string]string, correlationID string) (map[string]string, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return nil, fmt.Errorf("%w: correlation id is required", ErrInvalidTag)
	}
	if err := CheckCapacity(existing, TagCorrelationID); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(existing)+1)
	maps.Copy(out, existing)
	out[TagCorrelationID] = correlationID
	return out, nil
}

// ResubmitCount parses the counter tag. Missing or malformed values count
// as zero.
func ResubmitCount(t map[string]string) int {
	n, err := strconv.Atoi(strings.TrimSpace(t[TagResubmitCount]))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// CleanForReplay returns a copy of t without the correlation tag, keeping
// one slot free for the replay's own correlation tag. The resubmit counter
// is bumped only when it fits next to that slot; the returned count is the
// bumped value either way. t is never modified.
func CleanForReplay(t map[string]string) (map[string]string, int, error) {
	out := maps.Clone(t)
	if out == nil {
		out = map[string]string{}
	}
	delete(out, TagCorrelationID)
	if err := CheckCapacity(out, TagCorrelationID); err != nil {
		return nil, 0, err
	}
	count := ResubmitCount(t) + 1
	if CheckCapacity(out, TagResubmitCount, TagCorrelationID) == nil {
		out[TagResubmitCount] = strconv.Itoa(count)
	}
	return out, count, nil
}

// BumpResubmitCount is a TagUpdate incrementing the counter in place.
func BumpResubmitCount(t map[string]string) (map[string]string, error) {
	if err := CheckCapacity(t, TagResubmitCount); err != nil {
		return nil, err
	}
	t[TagResubmitCount] = strconv.Itoa(ResubmitCount(t) + 1)
	return t, nil
}
