// handlers/token.go
package handlers

import (
	"errors"
	"log"
	"strings"
	"time"

	"token-pool-system/middleware"
	"token-pool-system/services"
	"token-pool-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
)

const maxSourceLength = 32

func SetupTokenRoutes(
	app *fiber.App,
	pool *services.TokenPoolService,
	history *services.TokenHistoryService,
	sources *services.TokenSourceService,
	verifier services.TokenVerifier,
) {
	// 🔓 Public pool surface — the app and the token-harvesting clients
	app.Get("/api/token", claimTokenHandler(pool))
	app.Post("/api/token", ingestTokenHandler(pool, verifier))
	app.Get("/api/token/stats", tokenStatsHandler(pool))

	// 🔐 Admin views
	adminAuth := middleware.AdminAuthMiddleware()
	admin := app.Group("/api/admin", adminAuth)
	admin.Get("/tokens", tokenSourcesHandler(sources))
	admin.Get("/tokens/:source/history", sourceHistoryHandler(sources))

	statsAdmin := app.Group("/api/statistics/admin", adminAuth)
	statsAdmin.Get("/tokens", tokenHistoryHandler(history))
}

func claimTokenHandler(pool *services.TokenPoolService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// TODO: rate limiting
		userAgent := c.Get("User-Agent")
		if strings.HasPrefix(userAgent, "Mozilla/") {
			return c.Status(fiber.StatusBadRequest).
				SendString("Hello pls identify your application thx <3")
		}

		userID := c.Get("X-User-ID")
		if userID == "" {
			return c.Status(fiber.StatusBadRequest).SendString("Missing x-user-id header")
		}

		token, err := pool.Claim(userID, userAgent)
		if err != nil {
			return mapTokenError(c, err, "Failed to get token")
		}
		return c.SendString(token)
	}
}

func ingestTokenHandler(pool *services.TokenPoolService, verifier services.TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-Firebase-Token")
		if raw == "" {
			return c.Status(fiber.StatusBadRequest).SendString("Missing x-firebase-token header")
		}

		source := c.Get("X-Token-Source")
		if len(source) > maxSourceLength {
			return c.Status(fiber.StatusBadRequest).
				SendString("Token source too long (max 32 characters)")
		}
		if source != "" {
			// Labels end up in URLs (/api/admin/tokens/:source/history)
			source = slug.Make(source)
			if len(source) > maxSourceLength {
				source = source[:maxSourceLength]
			}
		}

		claims, err := verifier.Verify(c.UserContext(), raw)
		if err != nil {
			var verr *services.VerificationError
			if errors.As(err, &verr) {
				log.Printf("[TOKEN] verification rejected deposit: %v", verr)
				return c.Status(fiber.StatusBadRequest).SendString(verr.Message())
			}
			return mapTokenError(c, err, "Failed to store token")
		}

		if err := pool.Ingest(claims, raw, source); err != nil {
			return mapTokenError(c, err, "Failed to store token")
		}

		return c.JSON(fiber.Map{
			"success": true,
			"message": "Token stored successfully",
		})
	}
}

func tokenStatsHandler(pool *services.TokenPoolService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := pool.Stats()
		if err != nil {
			return mapTokenError(c, err, "Failed to get token statistics")
		}
		return c.JSON(stats)
	}
}

func tokenHistoryHandler(history *services.TokenHistoryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start, end := utils.ParseTimeRange(c.Query("start"), c.Query("end"))
		groupBy := c.Query("groupBy", "hour")
		timezone := c.Query("timezone", "UTC")

		meta := fiber.Map{
			"startDate": start.Format(time.RFC3339),
			"endDate":   end.Format(time.RFC3339),
			"groupBy":   groupBy,
		}

		switch groupBy {
		case "total":
			count, err := history.CreatedInRange(start, end)
			if err != nil {
				return mapTokenError(c, err, "Failed to fetch token statistics data")
			}
			return c.JSON(fiber.Map{"data": count, "meta": meta})
		case "hour", "day":
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).SendString("Invalid timezone")
			}
			samples, err := history.AvailabilitySeries(start, end, groupBy, loc)
			if err != nil {
				return mapTokenError(c, err, "Failed to fetch token statistics data")
			}
			return c.JSON(fiber.Map{"data": samples, "meta": meta})
		default:
			return c.Status(fiber.StatusBadRequest).
				SendString("groupBy must be hour, day or total")
		}
	}
}

func tokenSourcesHandler(sources *services.TokenSourceService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		summaries, err := sources.Sources()
		if err != nil {
			return mapTokenError(c, err, "Failed to fetch token sources")
		}
		return c.JSON(fiber.Map{"tokenSources": summaries})
	}
}

func sourceHistoryHandler(sources *services.TokenSourceService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deposits, err := sources.SourceHistory(c.Params("source"))
		if err != nil {
			return mapTokenError(c, err, "Failed to fetch source history")
		}
		return c.JSON(fiber.Map{"tokens": deposits})
	}
}

// mapTokenError translates the service error taxonomy to HTTP statuses.
// Anything untyped is a storage failure: logged in full, surfaced generic.
func mapTokenError(c *fiber.Ctx, err error, fallback string) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).SendString(verr.Msg)
	case errors.Is(err, services.ErrTokenExists):
		return c.Status(fiber.StatusConflict).SendString("Token already exists")
	case errors.Is(err, services.ErrNoTokensAvailable):
		return c.Status(fiber.StatusNotFound).SendString("No tokens available")
	default:
		log.Printf("[TOKEN] %s: %v", fallback, err)
		return c.Status(fiber.StatusInternalServerError).SendString(fallback)
	}
}
