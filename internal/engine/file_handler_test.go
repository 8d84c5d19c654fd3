package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitloop-backend/internal/config"
	"kitloop-backend/internal/metadata"
	"kitloop-backend/internal/ratelimit"
	"kitloop-backend/internal/storage"
	"kitloop-backend/internal/store"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

type fixedLimiter struct {
	allowed bool
	err     error
}

func (l fixedLimiter) Allow(context.Context, string) (bool, error) { return l.allowed, l.err }

// failingDelete stores files locally but cannot remove them.
type failingDelete struct {
	*storage.LocalStorage
}

func (failingDelete) Delete(context.Context, string, string) error { return errors.New("bucket unavailable") }

type fileEnv struct {
	app     *fiber.App
	store   *store.Store
	baseDir string
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "test"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx, config.AdminConfig{Email: "admin@test.local", Password: "secret"}))
	return s
}

// newFileEnv mounts the file routes behind a stub auth middleware that reads
// the user from X-Test-Provider and X-Test-Role headers.
func newFileEnv(t *testing.T, limiter ratelimit.Limiter) *fileEnv {
	t.Helper()
	return newFileEnvWithStorage(t, limiter, func(base string) storage.FileStorage {
		return storage.NewLocalStorage(base)
	})
}

func newFileEnvWithStorage(t *testing.T, limiter ratelimit.Limiter, newStorage func(base string) storage.FileStorage) *fileEnv {
	t.Helper()
	s := testStore(t)
	base := t.TempDir()
	reg := testRegistry(t)
	h := NewFileHandler(s, newStorage(base), reg, limiter, nil, "gear-images")

	authMW := func(c *fiber.Ctx) error {
		role := metadata.Role(c.Get("X-Test-Role", string(metadata.RoleOperator)))
		provider := c.Get("X-Test-Provider")
		c.Locals("user", &metadata.UserContext{ID: "user-" + provider, Role: role, ProviderID: provider})
		return c.Next()
	}
	pass := func(c *fiber.Ctx) error { return c.Next() }

	app := fiber.New(AppConfig(reg))
	RegisterFileRoutes(app, h, authMW, pass, pass)
	return &fileEnv{app: app, store: s, baseDir: base}
}

type uploadForm struct {
	filename    string
	contentType string
	content     []byte
	fields      map[string]string
}

func (e *fileEnv) upload(t *testing.T, provider string, form uploadForm) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range form.fields {
		require.NoError(t, w.WriteField(k, v))
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, form.filename))
	if form.contentType != "" {
		hdr.Set("Content-Type", form.contentType)
	}
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(form.content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest("POST", "/api/uploads", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Test-Provider", provider)
	return e.do(t, req)
}

func (e *fileEnv) request(t *testing.T, method, path, provider string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-Provider", provider)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *fileEnv) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestFileHandler_UploadServeDelete(t *testing.T) {
	env := newFileEnv(t, nil)

	// octet-stream makes the handler sniff the content
	status, body := env.upload(t, "provider123", uploadForm{
		filename:    "Tent.PNG",
		contentType: "application/octet-stream",
		content:     pngBytes,
		fields:      map[string]string{"use_case": "gear_image"},
	})
	require.Equal(t, 201, status, "body: %v", body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "gear-images", data["bucket"])
	assert.Equal(t, "image/png", data["mime_type"])
	path := data["path"].(string)
	assert.Regexp(t, `^provider123/gear/[0-9a-f-]{36}\.png$`, path)

	stored, err := os.ReadFile(filepath.Join(env.baseDir, "gear-images", filepath.FromSlash(path)))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)

	id := data["id"].(string)
	resp := env.request(t, "GET", "/api/files/"+id, "provider123")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	served, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, pngBytes, served)

	resp = env.request(t, "DELETE", "/api/files/"+id, "provider123")
	assert.Equal(t, 200, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, "GET", "/api/files/"+id, "provider123")
	assert.Equal(t, 404, resp.StatusCode)
	resp.Body.Close()
}

func TestFileHandler_UploadRejected(t *testing.T) {
	env := newFileEnv(t, nil)

	status, body := env.upload(t, "provider123", uploadForm{
		filename:    "manual.pdf",
		contentType: "application/pdf",
		content:     []byte("%PDF-1.4\n%fake"),
		fields:      map[string]string{"use_case": "gear_image"},
	})
	assert.Equal(t, 422, status)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "UPLOAD_REJECTED", errBody["code"])
	details := errBody["details"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "mime_not_allowed", details[0].(map[string]any)["rule"])

	row, err := store.QueryRow(context.Background(), env.store.DB, "SELECT COUNT(*) AS count FROM _files")
	require.NoError(t, err)
	assert.Equal(t, int64(0), store.ToInt64(row["count"]))
}

func TestFileHandler_UploadOutsidePrefix(t *testing.T) {
	env := newFileEnv(t, nil)

	status, body := env.upload(t, "provider123", uploadForm{
		filename:    "tent.png",
		contentType: "image/png",
		content:     pngBytes,
		fields:      map[string]string{"use_case": "gear_image", "path": "other-provider/gear/tent.png"},
	})
	assert.Equal(t, 422, status)
	details := body["error"].(map[string]any)["details"].([]any)
	assert.Equal(t, "path_not_allowed", details[0].(map[string]any)["rule"])
}

func TestFileHandler_DuplicatePathConflicts(t *testing.T) {
	env := newFileEnv(t, nil)
	form := uploadForm{
		filename:    "tent.png",
		contentType: "image/png",
		content:     pngBytes,
		fields:      map[string]string{"use_case": "gear_image", "path": "provider123/gear/tent.png"},
	}

	status, _ := env.upload(t, "provider123", form)
	require.Equal(t, 201, status)

	status, body := env.upload(t, "provider123", form)
	assert.Equal(t, 409, status)
	assert.Equal(t, "CONFLICT", body["error"].(map[string]any)["code"])
}

func TestFileHandler_RateLimited(t *testing.T) {
	env := newFileEnv(t, fixedLimiter{allowed: false})

	status, body := env.upload(t, "provider123", uploadForm{
		filename:    "tent.png",
		contentType: "image/png",
		content:     pngBytes,
		fields:      map[string]string{"use_case": "gear_image"},
	})
	assert.Equal(t, 429, status)
	assert.Equal(t, "RATE_LIMITED", body["error"].(map[string]any)["code"])
}

func TestFileHandler_LimiterErrorFailsOpen(t *testing.T) {
	env := newFileEnv(t, fixedLimiter{err: io.ErrClosedPipe})

	status, _ := env.upload(t, "provider123", uploadForm{
		filename:    "tent.png",
		contentType: "image/png",
		content:     pngBytes,
		fields:      map[string]string{"use_case": "gear_image"},
	})
	assert.Equal(t, 201, status)
}

func TestFileHandler_ProviderIsolation(t *testing.T) {
	env := newFileEnv(t, nil)

	status, body := env.upload(t, "provider123", uploadForm{
		filename:    "tent.png",
		contentType: "image/png",
		content:     pngBytes,
		fields:      map[string]string{"use_case": "gear_image"},
	})
	require.Equal(t, 201, status)
	id := body["data"].(map[string]any)["id"].(string)

	resp := env.request(t, "GET", "/api/files/"+id, "other-provider")
	assert.Equal(t, 404, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, "DELETE", "/api/files/"+id, "other-provider")
	assert.Equal(t, 404, resp.StatusCode)
	resp.Body.Close()

	req, _ := http.NewRequest("GET", "/api/files", nil)
	req.Header.Set("X-Test-Provider", "other-provider")
	status, body = env.do(t, req)
	assert.Equal(t, 200, status)
	assert.Empty(t, body["data"])

	req, _ = http.NewRequest("GET", "/api/files", nil)
	req.Header.Set("X-Test-Provider", "provider123")
	status, body = env.do(t, req)
	assert.Equal(t, 200, status)
	assert.Len(t, body["data"], 1)

	req, _ = http.NewRequest("GET", "/api/files", nil)
	req.Header.Set("X-Test-Provider", "kitloop")
	req.Header.Set("X-Test-Role", "admin")
	status, body = env.do(t, req)
	assert.Equal(t, 200, status)
	assert.Len(t, body["data"], 1)
}

func TestFileHandler_UploadAtSizeCeiling(t *testing.T) {
	env := newFileEnv(t, nil)
	const ceiling = 5 * mib

	content := make([]byte, ceiling)
	copy(content, pngBytes)
	status, body := env.upload(t, "provider123", uploadForm{
		filename:    "tent.png",
		contentType: "image/png",
		content:     content,
		fields:      map[string]string{"use_case": "gear_image"},
	})
	require.Equal(t, 201, status, "body: %v", body)
	assert.Equal(t, float64(ceiling), body["data"].(map[string]any)["size"])

	content = append(content, 0)
	status, body = env.upload(t, "provider123", uploadForm{
		filename:    "tent.png",
		contentType: "image/png",
		content:     content,
		fields:      map[string]string{"use_case": "gear_image"},
	})
	require.Equal(t, 422, status, "body: %v", body)
	details := body["error"].(map[string]any)["details"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "file_too_large", details[0].(map[string]any)["rule"])
}

func TestFileHandler_DeleteKeepsGoingWhenStorageFails(t *testing.T) {
	env := newFileEnvWithStorage(t, nil, func(base string) storage.FileStorage {
		return failingDelete{storage.NewLocalStorage(base)}
	})

	status, body := env.upload(t, "provider123", uploadForm{
		filename:    "tent.png",
		contentType: "image/png",
		content:     pngBytes,
		fields:      map[string]string{"use_case": "gear_image"},
	})
	require.Equal(t, 201, status)
	id := body["data"].(map[string]any)["id"].(string)

	resp := env.request(t, "DELETE", "/api/files/"+id, "provider123")
	assert.Equal(t, 200, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, "GET", "/api/files/"+id, "provider123")
	assert.Equal(t, 404, resp.StatusCode)
	resp.Body.Close()
}
