// Package exitcode lists the process exit statuses of the command-line tools.
package exitcode

import (
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
)

const (
	Success         = 0
	UsageError      = 1
	ValidationError = 2
	DatasetError    = 3
	HistoryError    = 4
	InternalError   = 5
)

// FromError maps an error to the exit status for its category
func FromError(err error) int {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, errors.CategoryValidation):
		return ValidationError
	case errors.Is(err, errors.CategoryDataset):
		return DatasetError
	case errors.Is(err, errors.CategoryConfiguration):
		return UsageError
	case errors.Is(err, errors.CategoryInternal):
		return InternalError
	}
	return UsageError
}
