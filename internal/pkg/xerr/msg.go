package xerr

import "errors"

var (
	ErrInternalServer = errors.New("internal server error")
	ErrDatabaseError  = errors.New("database operation failed")

	ErrInvalidParams = errors.New("invalid request parameters")
	ErrNameInvalid   = errors.New("name is empty or contains illegal characters")
	ErrNotFolder     = errors.New("target is not a folder")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrNotFound       = errors.New("not found")
	ErrFolderNotFound = wrapSentinel(ErrNotFound, "folder not found")
	ErrFileNotFound   = wrapSentinel(ErrNotFound, "file not found")

	ErrConflict      = errors.New("a node with the same name already exists in this folder")
	ErrQuotaExceeded = errors.New("drive quota exceeded")
	ErrCycle         = errors.New("cannot move a folder into itself or one of its descendants")
	ErrRootImmutable = errors.New("root folder cannot be moved, trashed or deleted")
	ErrInvalidState  = errors.New("node is not in a valid state for this operation")
	ErrCorruptTree   = errors.New("folder tree is corrupt")

	ErrStorage            = errors.New("storage operation failed")
	ErrStorageUnavailable = wrapSentinel(ErrStorage, "storage unavailable")
	ErrArchive            = errors.New("archive operation failed")
)

// sentinel 允许一个具体错误同时匹配其父类 (ErrFileNotFound 也是 ErrNotFound)
type sentinel struct {
	msg    string
	parent error
}

func (e *sentinel) Error() string { return e.msg }
func (e *sentinel) Unwrap() error { return e.parent }

func wrapSentinel(parent error, msg string) error {
	return &sentinel{msg: msg, parent: parent}
}
