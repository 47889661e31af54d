package signature

import (
	"errors"
)

var (
	// ErrDuplicatedSigner is returned when a validator contributes a second
	// signature to the same collector.
	ErrDuplicatedSigner = errors.New("duplicated signer")

	// ErrInvalidSigner is returned when the author of a signature is not a
	// member of the current epoch's committee.
	ErrInvalidSigner = errors.New("signer is not a committee member")
)
