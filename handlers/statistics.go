// handlers/statistics.go
package handlers

import (
	"strings"
	"time"

	"token-pool-system/middleware"
	"token-pool-system/services"
	"token-pool-system/utils"

	"github.com/gofiber/fiber/v2"
)

// Telemetry reports must come from the app itself.
const appUserAgentPrefix = "Gira+"

type usageRequest struct {
	DeviceID   string `json:"deviceId"`
	AppVersion string `json:"appVersion"`
	OS         string `json:"os"`
	OSVersion  string `json:"osVersion"`
}

type tripRequest struct {
	DeviceID      string `json:"deviceId"`
	BikeSerial    string `json:"bikeSerial"`
	StationSerial string `json:"stationSerial"`
}

type errorRequest struct {
	DeviceID     string `json:"deviceId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type ratingRequest struct {
	DeviceID   string `json:"deviceId"`
	BikeSerial string `json:"bikeSerial"`
	Rating     int    `json:"rating"`
}

func SetupStatisticsRoutes(app *fiber.App, telemetry *services.TelemetryService) {
	stats := app.Group("/api/statistics", requireAppUserAgent)
	stats.Post("/usage", recordUsageHandler(telemetry))
	stats.Post("/trips", recordTripHandler(telemetry))
	stats.Post("/errors", recordErrorHandler(telemetry))
	stats.Post("/ratings", recordRatingHandler(telemetry))

	app.Get("/api/statistics/usage", usageSeriesHandler(telemetry))

	admin := app.Group("/api/admin", middleware.AdminAuthMiddleware())
	admin.Get("/errors", recentErrorsHandler(telemetry))
	admin.Get("/versions", versionSeriesHandler(telemetry))

	statsAdmin := app.Group("/api/statistics/admin", middleware.AdminAuthMiddleware())
	statsAdmin.Get("/errors", errorSeriesHandler(telemetry))
}

// queryValues collects every occurrence of a repeated query parameter, e.g.
// ?errorCodes=a&errorCodes=b.
func queryValues(c *fiber.Ctx, key string) []string {
	raw := c.Context().QueryArgs().PeekMulti(key)
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if len(v) > 0 {
			values = append(values, string(v))
		}
	}
	return values
}

func requireAppUserAgent(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost && !strings.HasPrefix(c.Get("User-Agent"), appUserAgentPrefix) {
		return c.Status(fiber.StatusBadRequest).SendString("invalid user-agent")
	}
	return c.Next()
}

func recordUsageHandler(telemetry *services.TelemetryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body usageRequest
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("invalid request body")
		}
		if err := telemetry.RecordUsage(body.DeviceID, body.AppVersion, body.OS, body.OSVersion); err != nil {
			return mapTokenError(c, err, "An unknown error occurred")
		}
		return c.JSON(fiber.Map{"success": true})
	}
}

func recordTripHandler(telemetry *services.TelemetryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body tripRequest
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("invalid request body")
		}
		if err := telemetry.RecordTrip(body.DeviceID, body.BikeSerial, body.StationSerial); err != nil {
			return mapTokenError(c, err, "An unknown error occurred")
		}
		return c.JSON(fiber.Map{"success": true})
	}
}

func recordErrorHandler(telemetry *services.TelemetryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body errorRequest
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("invalid request body")
		}
		reportID, err := telemetry.RecordError(body.DeviceID, body.ErrorCode, body.ErrorMessage, c.Get("User-Agent"))
		if err != nil {
			return mapTokenError(c, err, "An unknown error occurred")
		}
		return c.JSON(fiber.Map{"success": true, "reportId": reportID})
	}
}

func recordRatingHandler(telemetry *services.TelemetryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ratingRequest
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("invalid request body")
		}
		if err := telemetry.RecordRating(body.DeviceID, body.BikeSerial, body.Rating); err != nil {
			return mapTokenError(c, err, "An unknown error occurred")
		}
		return c.JSON(fiber.Map{"success": true, "message": "Rating submitted successfully"})
	}
}

func usageSeriesHandler(telemetry *services.TelemetryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start, end := utils.ParseTimeRange(c.Query("start"), c.Query("end"))
		groupBy := c.Query("groupBy", "day")

		meta := fiber.Map{
			"startDate": start.Format(time.RFC3339),
			"endDate":   end.Format(time.RFC3339),
			"groupBy":   groupBy,
		}

		if groupBy == "total" {
			count, err := telemetry.UsageTotal(start, end)
			if err != nil {
				return mapTokenError(c, err, "Failed to fetch usage statistics data")
			}
			return c.JSON(fiber.Map{"data": count, "meta": meta})
		}

		samples, err := telemetry.UsageSeries(start, end, groupBy)
		if err != nil {
			return mapTokenError(c, err, "Failed to fetch usage statistics data")
		}
		return c.JSON(fiber.Map{"data": samples, "meta": meta})
	}
}

func errorSeriesHandler(telemetry *services.TelemetryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start, end := utils.ParseTimeRange(c.Query("start"), c.Query("end"))
		groupBy := c.Query("groupBy", "day")
		timezone := c.Query("timezone", "UTC")
		errorCodes := queryValues(c, "errorCodes")
		versions := queryValues(c, "versions")

		if _, err := time.LoadLocation(timezone); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid timezone")
		}

		meta := fiber.Map{
			"startDate": start.Format(time.RFC3339),
			"endDate":   end.Format(time.RFC3339),
			"groupBy":   groupBy,
			"timezone":  timezone,
		}

		if groupBy == "total" {
			count, err := telemetry.ErrorTotal(start, end, errorCodes, versions)
			if err != nil {
				return mapTokenError(c, err, "Failed to fetch error statistics data")
			}
			return c.JSON(fiber.Map{"data": count, "meta": meta})
		}

		samples, err := telemetry.ErrorSeries(start, end, groupBy, timezone, errorCodes, versions)
		if err != nil {
			return mapTokenError(c, err, "Failed to fetch error statistics data")
		}
		return c.JSON(fiber.Map{"data": samples, "meta": meta})
	}
}

func versionSeriesHandler(telemetry *services.TelemetryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start, end := utils.ParseTimeRange(c.Query("start"), c.Query("end"))
		groupBy := c.Query("groupBy", "hour")
		timezone := c.Query("timezone", "UTC")
		windowDays := c.QueryInt("slidingWindow", 0)
		platform := c.Query("platform")

		if _, err := time.LoadLocation(timezone); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid timezone")
		}

		datasets, err := telemetry.VersionSeries(start, end, groupBy, timezone, windowDays, platform)
		if err != nil {
			return mapTokenError(c, err, "Failed to fetch version statistics data")
		}

		labels := make([]string, 0, len(datasets))
		for _, d := range datasets {
			labels = append(labels, d.Label)
		}
		return c.JSON(fiber.Map{
			"data": datasets,
			"meta": fiber.Map{
				"startDate":   start.Format(time.RFC3339),
				"endDate":     end.Format(time.RFC3339),
				"groupBy":     groupBy,
				"timezone":    timezone,
				"platform":    platform,
				"appVersions": labels,
			},
		})
	}
}

func recentErrorsHandler(telemetry *services.TelemetryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := telemetry.RecentErrors()
		if err != nil {
			return mapTokenError(c, err, "Failed to get recent errors")
		}
		return c.JSON(report)
	}
}
