package engine

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kitloop-backend/internal/audit"
	"kitloop-backend/internal/logging"
	"kitloop-backend/internal/metadata"
	"kitloop-backend/internal/ratelimit"
	"kitloop-backend/internal/storage"
	"kitloop-backend/internal/store"
)

type FileHandler struct {
	store         *store.Store
	storage       storage.FileStorage
	rules         RuleSource
	limiter       ratelimit.Limiter
	recorder      audit.Recorder
	defaultBucket string
}

func NewFileHandler(s *store.Store, fs storage.FileStorage, rules RuleSource, limiter ratelimit.Limiter, recorder audit.Recorder, defaultBucket string) *FileHandler {
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}
	return &FileHandler{
		store:         s,
		storage:       fs,
		rules:         rules,
		limiter:       limiter,
		recorder:      recorder,
		defaultBucket: defaultBucket,
	}
}

// Upload handles POST /api/uploads (multipart: file, use_case, bucket, path).
// The admission check runs again here whatever the client decided.
func (h *FileHandler) Upload(c *fiber.Ctx) error {
	user := getUser(c)
	if user == nil {
		return UnauthorizedError("Authentication required")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return InvalidPayloadError("Missing file in form data")
	}

	ctx := c.Context()

	allowed, err := h.limiter.Allow(ctx, "uploads:"+user.ProviderID)
	if err != nil {
		logging.Warn("Upload rate limit check failed, continuing", zap.Error(err), zap.String("provider_id", user.ProviderID))
	} else if !allowed {
		return RateLimitedError(Localize("RATE_LIMITED", c.Get(fiber.HeaderAcceptLanguage)))
	}

	mimeType, err := declaredOrSniffedMime(file)
	if err != nil {
		return fmt.Errorf("sniff upload: %w", err)
	}

	useCase := c.FormValue("use_case")
	prefix := expectedPrefix(h.rules, useCase, user)
	path := c.FormValue("path")
	if path == "" && prefix != "" {
		path = prefix + uuid.New().String() + strings.ToLower(filepath.Ext(file.Filename))
	}

	req := metadata.UploadRequest{
		UseCase:        useCase,
		MimeType:       mimeType,
		SizeBytes:      file.Size,
		Path:           path,
		ExpectedPrefix: prefix,
		Bucket:         bucketOrDefault(c.FormValue("bucket"), h.defaultBucket),
	}
	result := ValidateUploadRequest(h.rules, req)
	h.recorder.Record(audit.UploadDecision(user, req, result))
	if !result.OK {
		msg := Localize(string(result.ReasonCode), c.Get(fiber.HeaderAcceptLanguage))
		return UploadRejectedError(result.ReasonCode, msg)
	}

	exists, err := h.pathTaken(c, req.Bucket, req.Path)
	if err != nil {
		return err
	}
	if exists {
		return ConflictError(fmt.Sprintf("A file already exists at %s", req.Path))
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	if err := h.storage.Save(ctx, req.Bucket, req.Path, src, metadata.NormalizeMime(mimeType)); err != nil {
		return fmt.Errorf("save file: %w", err)
	}

	fileID := uuid.New().String()
	pb := h.store.Dialect.NewParamBuilder()
	insertSQL := fmt.Sprintf(`INSERT INTO _files (id, provider_id, use_case, bucket, storage_path, filename, mime_type, size, uploaded_by, created_at)
	        VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(fileID), pb.Add(user.ProviderID), pb.Add(req.UseCase), pb.Add(req.Bucket), pb.Add(req.Path),
		pb.Add(file.Filename), pb.Add(metadata.NormalizeMime(mimeType)), pb.Add(file.Size), pb.Add(user.ID),
		pb.Add(time.Now().Unix()))
	if _, err := store.Exec(ctx, h.store.DB, insertSQL, pb.Params()...); err != nil {
		// A concurrent upload won the path; its object is the one now stored
		if errors.Is(h.store.MapError(err), store.ErrUniqueViolation) {
			return ConflictError(fmt.Sprintf("A file already exists at %s", req.Path))
		}
		_ = h.storage.Delete(ctx, req.Bucket, req.Path)
		return fmt.Errorf("insert _files: %w", err)
	}

	return c.Status(201).JSON(fiber.Map{
		"data": fiber.Map{
			"id":        fileID,
			"bucket":    req.Bucket,
			"path":      req.Path,
			"filename":  file.Filename,
			"size":      file.Size,
			"mime_type": metadata.NormalizeMime(mimeType),
			"url":       "/api/files/" + fileID,
		},
	})
}

// Serve handles GET /api/files/:id
func (h *FileHandler) Serve(c *fiber.Ctx) error {
	row, err := h.findFile(c, "filename, bucket, storage_path, mime_type")
	if err != nil {
		return err
	}

	bucket, _ := row["bucket"].(string)
	storagePath, _ := row["storage_path"].(string)
	mimeType, _ := row["mime_type"].(string)
	filename, _ := row["filename"].(string)

	reader, err := h.storage.Open(c.Context(), bucket, storagePath)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}

	c.Set(fiber.HeaderContentType, mimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s"`, strings.ReplaceAll(filename, `"`, "")))

	// fasthttp closes the stream once the response is written
	return c.SendStream(reader)
}

// Delete handles DELETE /api/files/:id. The _files row is removed first; a
// storage failure after that is logged, not returned.
func (h *FileHandler) Delete(c *fiber.Ctx) error {
	row, err := h.findFile(c, "id, bucket, storage_path")
	if err != nil {
		return err
	}

	bucket, _ := row["bucket"].(string)
	storagePath, _ := row["storage_path"].(string)

	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM _files WHERE id = %s", pb.Add(c.Params("id")))
	if _, err := store.Exec(c.Context(), h.store.DB, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("delete _files row: %w", err)
	}

	if err := h.storage.Delete(c.Context(), bucket, storagePath); err != nil {
		logging.Warn("Stored file not removed",
			zap.String("bucket", bucket),
			zap.String("path", storagePath),
			zap.Error(err))
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

// List handles GET /api/files. Non-admins only see their own provider's files.
func (h *FileHandler) List(c *fiber.Ctx) error {
	user := getUser(c)
	if user == nil {
		return UnauthorizedError("Authentication required")
	}

	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := "SELECT id, provider_id, use_case, bucket, storage_path, filename, mime_type, size, uploaded_by, created_at FROM _files"
	if !user.IsAdmin() {
		sqlStr += " WHERE provider_id = " + pb.Add(user.ProviderID)
	}
	sqlStr += " ORDER BY created_at DESC"

	rows, err := store.QueryRows(c.Context(), h.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list _files: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// findFile loads a _files row visible to the caller. Rows of other providers
// read as not found.
func (h *FileHandler) findFile(c *fiber.Ctx, columns string) (map[string]any, error) {
	user := getUser(c)
	if user == nil {
		return nil, UnauthorizedError("Authentication required")
	}

	id := c.Params("id")
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM _files WHERE id = %s", columns, pb.Add(id))
	if !user.IsAdmin() {
		sqlStr += " AND provider_id = " + pb.Add(user.ProviderID)
	}

	row, err := store.QueryRow(c.Context(), h.store.DB, sqlStr, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError("File", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load _files row: %w", err)
	}
	return row, nil
}

func (h *FileHandler) pathTaken(c *fiber.Ctx, bucket, path string) (bool, error) {
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT id FROM _files WHERE bucket = %s AND storage_path = %s", pb.Add(bucket), pb.Add(path))
	_, err := store.QueryRow(c.Context(), h.store.DB, sqlStr, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check _files path: %w", err)
	}
	return true, nil
}

// declaredOrSniffedMime trusts the part's Content-Type unless it is missing
// or application/octet-stream.
func declaredOrSniffedMime(file *multipart.FileHeader) (string, error) {
	declared := file.Header.Get("Content-Type")
	if declared != "" && metadata.NormalizeMime(declared) != "application/octet-stream" {
		return declared, nil
	}

	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	detected, err := mimetype.DetectReader(src)
	if err != nil {
		return "", err
	}
	return detected.String(), nil
}
