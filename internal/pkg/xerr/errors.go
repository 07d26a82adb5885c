package xerr

import (
	"errors"
	"fmt"
	"net/http"
)

// CodeError 在服务层传递带业务码的错误
type CodeError struct {
	Code int
	Err  error
}

func (e *CodeError) Error() string { return e.Err.Error() }
func (e *CodeError) Unwrap() error { return e.Err }

func NewCodeError(code int, err error) *CodeError {
	return &CodeError{Code: code, Err: err}
}

// NodeError 标记递归操作中失败的具体节点，调用方据此幂等重试
type NodeError struct {
	Op     string // trash, restore, permanent_delete, move, archive ...
	Kind   string // folder / file
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

func NewNodeError(op, kind, nodeID string, err error) *NodeError {
	return &NodeError{Op: op, Kind: kind, NodeID: nodeID, Err: err}
}

// FailedNode 返回错误链上最内层的失败节点 id
func FailedNode(err error) (string, bool) {
	var found string
	for err != nil {
		var ne *NodeError
		if !errors.As(err, &ne) {
			break
		}
		found = ne.NodeID
		err = ne.Err
	}
	return found, found != ""
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

var codeTable = []struct {
	err    error
	code   int
	status int
}{
	{ErrCorruptTree, CorruptTreeCode, http.StatusInternalServerError},
	{ErrFolderNotFound, FolderNotFoundCode, http.StatusNotFound},
	{ErrFileNotFound, FileNotFoundCode, http.StatusNotFound},
	{ErrNotFound, NotFoundCode, http.StatusNotFound},
	{ErrConflict, ConflictCode, http.StatusConflict},
	{ErrQuotaExceeded, QuotaExceededCode, http.StatusForbidden},
	{ErrForbidden, ForbiddenCode, http.StatusForbidden},
	{ErrUnauthorized, UnauthorizedCode, http.StatusUnauthorized},
	{ErrCycle, CycleCode, http.StatusConflict},
	{ErrRootImmutable, RootImmutableCode, http.StatusConflict},
	{ErrInvalidState, InvalidStateCode, http.StatusConflict},
	{ErrNameInvalid, NameInvalidCode, http.StatusUnprocessableEntity},
	{ErrNotFolder, TargetNotFolder, http.StatusBadRequest},
	{ErrInvalidParams, InvalidParamsCode, http.StatusBadRequest},
	{ErrStorageUnavailable, StorageUnavailableCode, http.StatusServiceUnavailable},
	{ErrStorage, StorageErrorCode, http.StatusBadGateway},
	{ErrArchive, ArchiveErrorCode, http.StatusInternalServerError},
	{ErrDatabaseError, DatabaseErrorCode, http.StatusInternalServerError},
}

// CodeOf 把错误映射到业务码和 HTTP 状态码
func CodeOf(err error) (code int, status int) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code, ce.Code / 100
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code, entry.status
		}
	}
	return InternalServerErrorCode, http.StatusInternalServerError
}
