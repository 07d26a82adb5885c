package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/3Eeeecho/go-drive/internal/config"
	"github.com/3Eeeecho/go-drive/internal/handlers"
	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/storage"
	"github.com/3Eeeecho/go-drive/internal/pkg/utils"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/router"
	"github.com/3Eeeecho/go-drive/internal/services/drive"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testSecret = "test-secret"
	testIssuer = "go-drive-test"
)

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	svc    *drive.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.SetLogger(zap.NewNop())

	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "drive.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	blobs, err := storage.NewLocalStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	svc, err := drive.New(drive.Deps{DB: db, Blobs: blobs}, drive.Options{
		TempDir:               filepath.Join(dir, "tmp"),
		DefaultAllocatedBytes: 1 << 20,
		MaxTreeDepth:          64,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		JWT:    config.JWTConfig{SecretKey: testSecret, Issuer: testIssuer},
	}
	engine := router.InitRouter(handlers.NewFolderHandler(svc), handlers.NewFileHandler(svc), handlers.NewUserHandler(svc), handlers.NewServerHandler(svc), cfg)
	return &testServer{t: t, engine: engine, svc: svc}
}

// account 开通网盘并返回 token 和根目录 id
func (s *testServer) account(username string, allocated int64, caps ...string) (string, uint64, string) {
	s.t.Helper()
	user, err := s.svc.ProvisionUser(context.Background(), username, allocated)
	require.NoError(s.t, err)
	return s.token(user.ID, username, caps...), user.ID, *user.FolderID
}

func (s *testServer) token(userID uint64, username string, caps ...string) string {
	s.t.Helper()
	token, err := utils.GenerateToken(userID, username, caps, testSecret, testIssuer, time.Hour)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) json(method, path, token string, body any) (*httptest.ResponseRecorder, apiResponse) {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(raw)
	}
	w := s.do(method, path, token, r, "application/json")
	return w, decode(s.t, w)
}

func (s *testServer) upload(token, folderID, name, content string) (*httptest.ResponseRecorder, apiResponse) {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(s.t, mw.WriteField("folder_id", folderID))
	part, err := mw.CreateFormFile("file", name)
	require.NoError(s.t, err)
	_, err = io.WriteString(part, content)
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	w := s.do(http.MethodPost, "/api/v1/files", token, &buf, mw.FormDataContentType())
	return w, decode(s.t, w)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

type nodeData struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Path          string `json:"path"`
	Size          int64  `json:"size"`
	FormattedSize string `json:"formatted_size"`
	MimeType      string `json:"mime_type"`
}

func data[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func TestAuth_RejectsMissingAndInvalidTokens(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/trash", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, xerr.UnauthorizedCode, decode(t, w).Code)

	forged, err := utils.GenerateToken(1, "mallory", nil, "other-secret", testIssuer, time.Hour)
	require.NoError(t, err)
	w = s.do(http.MethodGet, "/api/v1/trash", forged, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/ping", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProvisionDrive_Idempotent(t *testing.T) {
	s := newTestServer(t)
	token := s.token(0, "alice")

	w, resp := s.json(http.MethodPost, "/api/v1/users/me/drive", token, map[string]int64{"allocated_bytes": 4096})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := data[models.User](t, resp)
	require.NotNil(t, first.FolderID)
	assert.Equal(t, int64(4096), first.AllocatedDriveBytes)

	w, resp = s.json(http.MethodPost, "/api/v1/users/me/drive", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	second := data[models.User](t, resp)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, *first.FolderID, *second.FolderID)
}

func TestFolderLifecycle(t *testing.T) {
	s := newTestServer(t)
	token, _, root := s.account("alice", 0)

	w, resp := s.json(http.MethodPost, "/api/v1/folders", token, map[string]string{"parent_id": root, "name": "docs"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	docs := data[nodeData](t, resp)
	assert.Equal(t, "/alice/docs", docs.Path)

	w, resp = s.json(http.MethodPost, "/api/v1/folders", token, map[string]string{"parent_id": root, "name": "docs"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, xerr.ConflictCode, resp.Code)

	w, resp = s.json(http.MethodPost, "/api/v1/folders", token, map[string]string{"parent_id": root, "name": "a/b"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, xerr.NameInvalidCode, resp.Code)

	w, resp = s.json(http.MethodPut, "/api/v1/folders/"+docs.ID+"/name", token, map[string]string{"name": "papers"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/alice/papers", data[nodeData](t, resp).Path)

	w, resp = s.json(http.MethodGet, "/api/v1/folders/"+docs.ID+"/path", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/alice/papers", data[map[string]string](t, resp)["path"])

	w, _ = s.json(http.MethodPost, "/api/v1/folders/"+docs.ID+"/trash", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = s.json(http.MethodGet, "/api/v1/trash", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	trash := data[struct {
		Folders []nodeData `json:"folders"`
	}](t, resp)
	require.Len(t, trash.Folders, 1)
	assert.Equal(t, docs.ID, trash.Folders[0].ID)

	w, _ = s.json(http.MethodPost, "/api/v1/folders/"+docs.ID+"/restore", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 未进回收站不能永久删除
	w, resp = s.json(http.MethodDelete, "/api/v1/folders/"+docs.ID, token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, xerr.InvalidStateCode, resp.Code)

	w, _ = s.json(http.MethodPost, "/api/v1/folders/"+docs.ID+"/trash", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.json(http.MethodDelete, "/api/v1/folders/"+docs.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = s.json(http.MethodGet, "/api/v1/folders/"+docs.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, xerr.FolderNotFoundCode, resp.Code)

	// 根目录不可回收
	w, resp = s.json(http.MethodPost, "/api/v1/folders/"+root+"/trash", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, xerr.RootImmutableCode, resp.Code)
}

func TestUploadListAndDownload(t *testing.T) {
	s := newTestServer(t)
	token, userID, root := s.account("alice", 1000)

	w, resp := s.upload(token, root, "notes.txt", "hello drive")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	file := data[nodeData](t, resp)
	assert.Equal(t, "notes.txt", file.FullName)
	assert.Equal(t, "/alice/notes.txt", file.Path)
	assert.Equal(t, int64(11), file.Size)

	// 同名上传自动编号
	w, resp = s.upload(token, root, "notes.txt", "again")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "notes (1).txt", data[nodeData](t, resp).FullName)

	w, resp = s.json(http.MethodGet, "/api/v1/folders/"+root, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing := data[struct {
		Folder nodeData   `json:"folder"`
		Files  []nodeData `json:"files"`
	}](t, resp)
	assert.Equal(t, int64(16), listing.Folder.Size)
	assert.Len(t, listing.Files, 2)

	w = s.do(http.MethodGet, "/api/v1/files/"+file.ID+"/content", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello drive", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "notes.txt")

	w, resp = s.json(http.MethodGet, "/api/v1/users/"+itoa(userID)+"/usage", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	usage := data[drive.UsageView](t, resp)
	assert.Equal(t, int64(16), usage.UsedBytes)
	assert.Equal(t, int64(984), usage.FreeBytes)
}

func TestUpload_QuotaExceeded(t *testing.T) {
	s := newTestServer(t)
	token, _, root := s.account("alice", 10)

	w, resp := s.upload(token, root, "big.bin", strings.Repeat("x", 11))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, xerr.QuotaExceededCode, resp.Code)

	w, _ = s.upload(token, "", "x.txt", "x")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMoveAcrossOwnersRequiresCapability(t *testing.T) {
	s := newTestServer(t)
	alice, _, aliceRoot := s.account("alice", 1000)
	_, bobID, bobRoot := s.account("bob", 1000)

	_, resp := s.upload(alice, aliceRoot, "report.pdf", strings.Repeat("p", 300))
	file := data[nodeData](t, resp)

	w, resp := s.json(http.MethodPut, "/api/v1/files/"+file.ID+"/parent", alice, map[string]string{"dest_id": bobRoot})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, xerr.ForbiddenCode, resp.Code)

	admin := s.token(0, "admin", string(drive.CapMoveFiles))
	w, resp = s.json(http.MethodPut, "/api/v1/files/"+file.ID+"/parent", admin, map[string]string{"dest_id": bobRoot})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/bob/report.pdf", data[nodeData](t, resp).Path)

	bob := s.token(bobID, "bob")
	w, resp = s.json(http.MethodGet, "/api/v1/users/"+itoa(bobID)+"/usage", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(300), data[drive.UsageView](t, resp).UsedBytes)

	// 移动到自身下形成环
	w, resp = s.json(http.MethodPost, "/api/v1/folders", bob, map[string]string{"parent_id": bobRoot, "name": "a"})
	require.Equal(t, http.StatusCreated, w.Code)
	a := data[nodeData](t, resp)
	w, resp = s.json(http.MethodPut, "/api/v1/folders/"+a.ID+"/parent", bob, map[string]string{"dest_id": a.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, xerr.CycleCode, resp.Code)
}

func TestDownloadFolderArchive(t *testing.T) {
	s := newTestServer(t)
	token, _, root := s.account("alice", 1000)

	_, resp := s.json(http.MethodPost, "/api/v1/folders", token, map[string]string{"parent_id": root, "name": "docs"})
	docs := data[nodeData](t, resp)
	_, _ = s.upload(token, docs.ID, "a.txt", "aaa")

	w := s.do(http.MethodGet, "/api/v1/folders/"+docs.ID+"/archive", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "docs.zip")

	body := w.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "a.txt", zr.File[0].Name)
}

func TestFileRenameTrashRestoreDelete(t *testing.T) {
	s := newTestServer(t)
	token, userID, root := s.account("alice", 1000)

	_, resp := s.upload(token, root, "draft.md", "# title")
	file := data[nodeData](t, resp)

	w, resp := s.json(http.MethodPut, "/api/v1/files/"+file.ID+"/name", token, map[string]string{"name": "final.md"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "final.md", data[nodeData](t, resp).FullName)

	w, resp = s.json(http.MethodGet, "/api/v1/files/"+file.ID+"/path", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/alice/final.md", data[map[string]string](t, resp)["path"])

	w, _ = s.json(http.MethodPost, "/api/v1/files/"+file.ID+"/trash", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, resp = s.json(http.MethodGet, "/api/v1/files/"+file.ID+"/content", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, xerr.InvalidStateCode, resp.Code)

	w, _ = s.json(http.MethodPost, "/api/v1/files/"+file.ID+"/restore", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.json(http.MethodPost, "/api/v1/files/"+file.ID+"/trash", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.json(http.MethodDelete, "/api/v1/files/"+file.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	// 重复删除是幂等的
	w, _ = s.json(http.MethodDelete, "/api/v1/files/"+file.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = s.json(http.MethodGet, "/api/v1/users/"+itoa(userID)+"/usage", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), data[drive.UsageView](t, resp).UsedBytes)
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/nope", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, xerr.NotFoundCode, decode(t, w).Code)
}

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func TestFetchFileRootAndOwnedNodes(t *testing.T) {
	s := newTestServer(t)
	alice, aliceID, root := s.account("alice", 1000)
	bob, _, _ := s.account("bob", 1000)

	_, resp := s.json(http.MethodPost, "/api/v1/folders", alice, map[string]string{"parent_id": root, "name": "docs"})
	docs := data[nodeData](t, resp)
	_, resp = s.upload(alice, docs.ID, "a.txt", "aaa")
	file := data[nodeData](t, resp)

	w, resp := s.json(http.MethodGet, "/api/v1/files/"+file.ID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := data[nodeData](t, resp)
	assert.Equal(t, "a.txt", got.FullName)
	assert.Equal(t, "/alice/docs/a.txt", got.Path)

	w, resp = s.json(http.MethodGet, "/api/v1/files/"+file.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, xerr.ForbiddenCode, resp.Code)

	w, resp = s.json(http.MethodGet, "/api/v1/users/me/folder", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	current := data[nodeData](t, resp)
	assert.Equal(t, root, current.ID)
	assert.Equal(t, "/alice", current.Path)

	w, _ = s.json(http.MethodGet, "/api/v1/users/me/folder", s.token(999, "ghost"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	type page struct {
		Items    []nodeData `json:"items"`
		Total    int64      `json:"total"`
		PageSize int        `json:"page_size"`
	}
	w, resp = s.json(http.MethodGet, "/api/v1/users/"+itoa(aliceID)+"/folders?page=1&page_size=10", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	folders := data[page](t, resp)
	assert.Equal(t, int64(2), folders.Total)
	assert.Equal(t, 10, folders.PageSize)
	assert.Len(t, folders.Items, 2)

	w, resp = s.json(http.MethodGet, "/api/v1/users/"+itoa(aliceID)+"/files", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	files := data[page](t, resp)
	assert.Equal(t, int64(1), files.Total)
	assert.Equal(t, drive.DefaultPageSize, files.PageSize)
	require.Len(t, files.Items, 1)
	assert.Equal(t, file.ID, files.Items[0].ID)

	w, resp = s.json(http.MethodGet, "/api/v1/users/"+itoa(aliceID)+"/folders?page_size=7", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, xerr.InvalidParamsCode, resp.Code)

	w, _ = s.json(http.MethodGet, "/api/v1/users/"+itoa(aliceID)+"/folders", bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := s.token(0, "admin", string(drive.CapFetchFolders))
	w, _ = s.json(http.MethodGet, "/api/v1/users/"+itoa(aliceID)+"/folders", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerStats(t *testing.T) {
	s := newTestServer(t)
	token, _, _ := s.account("alice", 0)

	w, resp := s.json(http.MethodGet, "/api/v1/server/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stats := data[drive.DiskStats](t, resp)
	assert.Positive(t, stats.Total.Bytes)
	assert.Equal(t, stats.Total.Bytes, stats.Free.Bytes+stats.Used.Bytes)
	assert.NotEmpty(t, stats.Total.Formatted)
}

func TestSwaggerDocs(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/swagger/index.html", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/swagger/doc.json", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/files/{id}")
	assert.Contains(t, w.Body.String(), "BearerAuth")
}
