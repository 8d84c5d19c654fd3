package engine

import "github.com/gofiber/fiber/v2"

func RegisterPolicyRoutes(app *fiber.App, h *PolicyHandler, authMW fiber.Handler) {
	api := app.Group("/api")

	api.Post("/permissions/check", authMW, h.CheckPermission)
	api.Get("/permissions", authMW, h.Matrix)
	api.Post("/uploads/validate", authMW, h.ValidateUpload)
	api.Get("/uploads/rules", authMW, h.UploadRules)
}

// RegisterFileRoutes mounts the upload and file endpoints. uploadGuard and
// deleteGuard are route guards for creating and deleting inventory media.
func RegisterFileRoutes(app *fiber.App, h *FileHandler, authMW, uploadGuard, deleteGuard fiber.Handler) {
	api := app.Group("/api")

	api.Post("/uploads", authMW, uploadGuard, h.Upload)
	api.Get("/files", authMW, h.List)
	api.Get("/files/:id", authMW, h.Serve)
	api.Delete("/files/:id", authMW, deleteGuard, h.Delete)
}
