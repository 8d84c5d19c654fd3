package engine

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"kitloop-backend/internal/audit"
	"kitloop-backend/internal/logging"
	"kitloop-backend/internal/metadata"
)

// PolicyHandler exposes the permission gate and upload validator over HTTP so
// UI code can ask before it renders or dispatches.
type PolicyHandler struct {
	rules         RuleSource
	recorder      audit.Recorder
	defaultBucket string
}

func NewPolicyHandler(rules RuleSource, recorder audit.Recorder, defaultBucket string) *PolicyHandler {
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}
	return &PolicyHandler{rules: rules, recorder: recorder, defaultBucket: defaultBucket}
}

// CheckPermission handles POST /api/permissions/check
func (h *PolicyHandler) CheckPermission(c *fiber.Ctx) error {
	var body struct {
		Action   string `json:"action"`
		Resource string `json:"resource"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid request body")
	}

	action, err := metadata.ParseAction(body.Action)
	if err != nil {
		return InvalidPayloadError(err.Error())
	}
	resource, err := metadata.ParseResource(body.Resource)
	if err != nil {
		return InvalidPayloadError(err.Error())
	}

	user := getUser(c)
	allowed := Can(user, action, resource)
	h.recorder.Record(audit.PermissionDecision(user, action, resource, allowed))

	return c.JSON(fiber.Map{"data": fiber.Map{
		"action":   action,
		"resource": resource,
		"allowed":  allowed,
	}})
}

// Matrix handles GET /api/permissions
func (h *PolicyHandler) Matrix(c *fiber.Ctx) error {
	user := getUser(c)
	if user == nil {
		return UnauthorizedError("Authentication required")
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"role":        user.Role,
		"permissions": PermissionMatrix(user),
	}})
}

// ValidateUpload handles POST /api/uploads/validate. The expected prefix is
// derived from the caller's provider, never taken from the body.
func (h *PolicyHandler) ValidateUpload(c *fiber.Ctx) error {
	var body struct {
		UseCase   string `json:"use_case"`
		MimeType  string `json:"mime_type"`
		SizeBytes int64  `json:"size_bytes"`
		Path      string `json:"path"`
		Bucket    string `json:"bucket"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid request body")
	}

	user := getUser(c)
	if user == nil {
		return UnauthorizedError("Authentication required")
	}

	req := metadata.UploadRequest{
		UseCase:        body.UseCase,
		MimeType:       body.MimeType,
		SizeBytes:      body.SizeBytes,
		Path:           body.Path,
		ExpectedPrefix: expectedPrefix(h.rules, body.UseCase, user),
		Bucket:         bucketOrDefault(body.Bucket, h.defaultBucket),
	}
	result := ValidateUploadRequest(h.rules, req)
	h.recorder.Record(audit.UploadDecision(user, req, result))

	resp := fiber.Map{
		"ok":              result.OK,
		"expected_prefix": req.ExpectedPrefix,
	}
	if !result.OK {
		resp["reason_code"] = result.ReasonCode
		resp["message"] = Localize(string(result.ReasonCode), c.Get(fiber.HeaderAcceptLanguage))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// UploadRules handles GET /api/uploads/rules
func (h *PolicyHandler) UploadRules(c *fiber.Ctx) error {
	lister, ok := h.rules.(interface {
		AllUploadRules() []*metadata.UploadRule
	})
	if !ok {
		return c.JSON(fiber.Map{"data": []any{}})
	}
	return c.JSON(fiber.Map{"data": lister.AllUploadRules()})
}

func expectedPrefix(rules RuleSource, useCase string, user *metadata.UserContext) string {
	if rules == nil || user == nil {
		return ""
	}
	rule := rules.GetUploadRule(useCase)
	if rule == nil {
		return ""
	}
	return rule.PrefixFor(user.ProviderID)
}

func bucketOrDefault(bucket, def string) string {
	if bucket == "" {
		return def
	}
	return bucket
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

// multipartEnvelope is the body allowance on top of the largest file for
// form fields and part headers.
const multipartEnvelope = 1 << 20

// AppConfig is the Fiber config the server runs with. The body limit follows
// the largest upload ceiling so oversized files still reach the admission
// check and get a file_too_large rejection.
func AppConfig(rules *metadata.Registry) fiber.Config {
	limit := fiber.DefaultBodyLimit
	if rules != nil {
		if max := int(rules.MaxUploadSize()) + multipartEnvelope; max > limit {
			limit = max
		}
	}
	return fiber.Config{
		ErrorHandler: ErrorHandler,
		BodyLimit:    limit,
	}
}

// ErrorHandler renders AppErrors as JSON and hides everything else behind a
// generic 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		return c.Status(code).JSON(ErrorResponse{Error: &AppError{
			Code:    "HTTP_ERROR",
			Message: fiberErr.Message,
		}})
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	logging.Error("Unhandled request error", zap.Error(err), zap.String("path", c.Path()))
	return c.Status(code).JSON(ErrorResponse{
		Error: &AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
