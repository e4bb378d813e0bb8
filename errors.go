package actioncache

import (
	"fmt"
)

// InvalidateError reports an InvalidateTag or Clear call where neither the
// generation bump nor the tracked-key deletion could be applied. Entries
// carrying the tag may keep validating until the backend recovers.
type InvalidateError struct {
	Tag     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Tag, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Tag, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Tag, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Tag)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
