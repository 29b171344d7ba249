package file

import "errors"

var (
	// ErrFileNotFound signals that the file could not be located.
	ErrFileNotFound = errors.New("file not found")
	// ErrForbidden indicates the caller does not own the file.
	ErrForbidden = errors.New("forbidden")
	// ErrUnsupportedMediaType rejects content types outside the allow-list.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrInvalidUpload signals a malformed upload request, such as a bad size.
	ErrInvalidUpload = errors.New("invalid upload request")
	// ErrInvalidState signals the file is not in a status that allows the operation.
	ErrInvalidState = errors.New("invalid file state")
	// ErrInvalidStatus rejects a callback reporting a non-terminal status.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrUnsupportedVersion rejects a callback from a newer contract revision.
	ErrUnsupportedVersion = errors.New("unsupported callback version")
	// ErrStorage wraps object store failures.
	ErrStorage = errors.New("object storage failure")
	// ErrDelivery signals that a job could not be handed to the queue.
	ErrDelivery = errors.New("job delivery failed")
)
