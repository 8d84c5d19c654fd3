package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kitloop-backend/internal/engine"
	"kitloop-backend/internal/logging"
	"kitloop-backend/internal/metadata"
	"kitloop-backend/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	store     *store.Store
	jwtSecret string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(s *store.Store, jwtSecret string) *AuthHandler {
	return &AuthHandler{store: s, jwtSecret: jwtSecret}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()

	row, err := h.findUserByEmail(ctx, body.Email)
	if err != nil {
		return engine.UnauthorizedError("Invalid email or password")
	}

	if !store.ToBool(row["active"]) {
		return engine.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := row["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	user, err := userFromRow(row)
	if err != nil {
		logging.Warn("User row has unknown role", zap.String("email", body.Email), zap.Error(err))
		return engine.UnauthorizedError("Account is misconfigured")
	}

	pair, err := h.generateTokenPair(ctx, user)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()

	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB, fmt.Sprintf(
		`SELECT rt.id AS token_id, rt.expires_at, u.id, u.role, u.is_verified, u.provider_id, u.active
		 FROM _refresh_tokens rt
		 JOIN _users u ON u.id = rt.user_id
		 WHERE rt.token = %s`, pb.Add(body.RefreshToken)), pb.Params()...)
	if err != nil {
		return engine.UnauthorizedError("Invalid refresh token")
	}

	// Rotation: the presented token is single use whatever happens next
	tokenID, _ := row["token_id"].(string)
	h.deleteRefreshToken(ctx, "id", tokenID)

	if time.Now().Unix() > store.ToInt64(row["expires_at"]) {
		return engine.UnauthorizedError("Refresh token expired")
	}

	if !store.ToBool(row["active"]) {
		return engine.UnauthorizedError("Account is disabled")
	}

	user, err := userFromRow(row)
	if err != nil {
		return engine.UnauthorizedError("Account is misconfigured")
	}

	pair, err := h.generateTokenPair(ctx, user)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	h.deleteRefreshToken(c.Context(), "token", body.RefreshToken)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	auth := app.Group("/api/auth")
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Post("/logout", h.Logout)
}

// --- helpers ---

func (h *AuthHandler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	return store.QueryRow(ctx, h.store.DB, fmt.Sprintf(
		"SELECT id, email, password_hash, role, is_verified, provider_id, active FROM _users WHERE email = %s",
		pb.Add(email)), pb.Params()...)
}

func (h *AuthHandler) deleteRefreshToken(ctx context.Context, column, value string) {
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM _refresh_tokens WHERE %s = %s", column, pb.Add(value))
	if _, err := store.Exec(ctx, h.store.DB, sqlStr, pb.Params()...); err != nil {
		logging.Warn("Failed to delete refresh token", zap.Error(err))
	}
}

func (h *AuthHandler) generateTokenPair(ctx context.Context, user *metadata.UserContext) (*TokenPair, error) {
	accessToken, err := GenerateAccessToken(user, h.jwtSecret)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	expiresAt := time.Now().Add(RefreshTokenTTL).Unix()

	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(`INSERT INTO _refresh_tokens (id, user_id, token, expires_at) VALUES (%s, %s, %s, %s)`,
		pb.Add(uuid.New().String()), pb.Add(user.ID), pb.Add(refreshToken), pb.Add(expiresAt))
	if _, err := store.Exec(ctx, h.store.DB, sqlStr, pb.Params()...); err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func userFromRow(row map[string]any) (*metadata.UserContext, error) {
	roleStr, _ := row["role"].(string)
	role, err := metadata.ParseRole(roleStr)
	if err != nil {
		return nil, err
	}

	id, _ := row["id"].(string)
	providerID, _ := row["provider_id"].(string)

	user := &metadata.UserContext{ID: id, Role: role, ProviderID: providerID}
	if v := row["is_verified"]; v != nil {
		verified := store.ToBool(v)
		user.IsVerified = &verified
	}
	return user, nil
}
