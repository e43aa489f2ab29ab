package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedChunk   = errors.New("chunk outside an active receive")
	ErrSizeExceeded      = errors.New("received more bytes than announced")
	ErrBufferTimeout     = errors.New("buffer not draining")
	ErrInvalidFile       = errors.New("invalid file")
	ErrTransferCancelled = errors.New("transfer cancelled")
	ErrShortRead         = errors.New("file shorter than announced")
)

type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}
