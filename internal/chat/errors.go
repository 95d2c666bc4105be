package chat

import (
	"errors"
	"fmt"

	"github.com/fitsphere/chat-service/internal/database"
)

// Error kinds callers map to transport status codes with errors.Is
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// translate turns storage sentinels into the kinds above and leaves
// anything else (transient store failures) untouched
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrUserNotFound):
		return fmt.Errorf("%w: user not found", ErrNotFound)
	case errors.Is(err, database.ErrChatNotFound):
		return fmt.Errorf("%w: chat not found", ErrNotFound)
	case errors.Is(err, database.ErrMessageNotFound):
		return fmt.Errorf("%w: message not found", ErrNotFound)
	case errors.Is(err, database.ErrNotParticipant):
		return fmt.Errorf("%w: not a participant of this chat", ErrForbidden)
	default:
		return err
	}
}
