package xerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   int
		status int
	}{
		{"file not found", fmt.Errorf("load: %w", ErrFileNotFound), FileNotFoundCode, http.StatusNotFound},
		{"generic not found", ErrNotFound, NotFoundCode, http.StatusNotFound},
		{"quota", ErrQuotaExceeded, QuotaExceededCode, http.StatusForbidden},
		{"cycle", ErrCycle, CycleCode, http.StatusConflict},
		{"unavailable", fmt.Errorf("put: %w", ErrStorageUnavailable), StorageUnavailableCode, http.StatusServiceUnavailable},
		{"storage", ErrStorage, StorageErrorCode, http.StatusBadGateway},
		{"code error", NewCodeError(ConflictCode, errors.New("dup")), ConflictCode, http.StatusConflict},
		{"unknown", errors.New("boom"), InternalServerErrorCode, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, status := CodeOf(tc.err)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.status, status)
		})
	}
}

func TestSentinelHierarchy(t *testing.T) {
	assert.ErrorIs(t, ErrFolderNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrStorageUnavailable, ErrStorage)
	assert.NotErrorIs(t, ErrStorage, ErrStorageUnavailable)
}

func TestFailedNode_InnermostWins(t *testing.T) {
	inner := NewNodeError("permanent_delete", "file", "file-2", ErrStorage)
	outer := NewNodeError("permanent_delete", "folder", "folder-1", inner)

	id, ok := FailedNode(fmt.Errorf("delete: %w", outer))
	require.True(t, ok)
	assert.Equal(t, "file-2", id)
	assert.ErrorIs(t, outer, ErrStorage)

	_, ok = FailedNode(ErrConflict)
	assert.False(t, ok)
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondError(c, NewNodeError("permanent_delete", "file", "f-9", ErrStorageUnavailable))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp struct {
		Code int               `json:"code"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StorageUnavailableCode, resp.Code)
	assert.Equal(t, "f-9", resp.Data["failed_node_id"])
}
