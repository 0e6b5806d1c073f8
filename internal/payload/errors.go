package payload

import "errors"

// Structural errors are raised locally, before anything is sent. They mean
// the message was assembled wrongly and retrying will not help.
var (
	ErrTooManyCategories  = errors.New("too many category headers")
	ErrTooManyTemplateIDs = errors.New("too many template id headers")
	ErrBaseHasRecipients  = errors.New("batch base message must not have to, cc or bcc recipients")
	ErrUnknownHeader      = errors.New("unknown header kind")
)

// IsStructural reports whether err is one of the structural errors above.
func IsStructural(err error) bool {
	return errors.Is(err, ErrTooManyCategories) ||
		errors.Is(err, ErrTooManyTemplateIDs) ||
		errors.Is(err, ErrBaseHasRecipients) ||
		errors.Is(err, ErrUnknownHeader)
}
