package capture

import (
	"errors"
	"fmt"

	"github.com/cubbscratchstudios/splat/internal/message"
)

var (
	ErrMissingMessageID    = errors.New("missing message id")
	ErrMissingConversation = errors.New("missing conversation id")
	ErrMissingAuthor       = errors.New("missing author identity")
	ErrUnsupportedEvent    = errors.New("unsupported event kind")
	ErrQueueFull           = errors.New("capture queue full")
	ErrStopped             = errors.New("capture service stopped")
)

// NormalizationError reports a malformed event. Retrying the same event
// reproduces the same error, so such events are dropped.
type NormalizationError struct {
	Kind EventKind
	Key  message.Key
	Err  error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s event %s: %v", e.Kind, e.Key, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// IsNormalizationError reports whether err came from Normalize.
func IsNormalizationError(err error) bool {
	var target *NormalizationError
	return errors.As(err, &target)
}
