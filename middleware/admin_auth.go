// middleware/admin_auth.go
package middleware

import (
	"encoding/base64"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
)

// AdminAuthMiddleware guards the /api/admin surface with the dashboard's
// basic-auth credential pair ("login:password" in ADMIN_LOGIN).
func AdminAuthMiddleware() fiber.Handler {
	adminLogin := os.Getenv("ADMIN_LOGIN")
	if adminLogin == "" {
		log.Println("⚠️  ADMIN_LOGIN environment variable is not set — admin endpoints will reject every request")
	}
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte(adminLogin))

	return func(c *fiber.Ctx) error {
		if adminLogin == "" || c.Get("Authorization") != expected {
			c.Set("WWW-Authenticate", `Basic realm="User Visible Realm", charset="UTF-8"`)
			return c.Status(fiber.StatusUnauthorized).SendString("Not authorized")
		}
		return c.Next()
	}
}
