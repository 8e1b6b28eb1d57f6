package ai

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tapedesk/tape/internal/retry"
)

// maxRetryAfterWait caps server-suggested waits so a broken hint cannot
// stall a loop for an hour.
const maxRetryAfterWait = 15 * time.Minute

var retryAfterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)try again in (\d+) (second|minute|hour)s?`),
	regexp.MustCompile(`(?i)wait (\d+) (second|minute|hour)s?`),
	regexp.MustCompile(`(?i)retry[_-]after"?\s*[:=]\s*(\d+)`),
}

// Classify is the model-call classifier: the baseline mapping plus the
// provider's wait hints. A rate-limit error that names a wait ("try again
// in 12 minutes", "retry_after: 600") gets it honored, capped at
// maxRetryAfterWait.
func Classify(err error) (retry.Class, time.Duration) {
	class, wait := retry.DefaultClassifier(err)
	if class == retry.ClassTransient && wait == 0 && err != nil {
		wait = parseRetryAfter(err.Error())
	}
	if wait > maxRetryAfterWait {
		wait = maxRetryAfterWait
	}
	return class, wait
}

// parseRetryAfter extracts a wait duration from an error message, 0 if none
func parseRetryAfter(msg string) time.Duration {
	for _, re := range retryAfterPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			continue
		}
		unit := time.Second
		if len(m) > 2 {
			switch strings.ToLower(m[2]) {
			case "minute":
				unit = time.Minute
			case "hour":
				unit = time.Hour
			}
		}
		return time.Duration(n) * unit
	}
	return 0
}
