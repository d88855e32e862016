package merge

import (
	"errors"
	"fmt"
)

var (
	errNoProvider  = errors.New("merge: no language model configured")
	errEmptyAnswer = errors.New("merge: model returned an empty answer")
	errTruncated   = errors.New("merge: model answer was cut off at the token limit")
)

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("merge: provider panicked: %v", e.value) }
