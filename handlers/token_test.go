package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"token-pool-system/models"
	"token-pool-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:handlertest%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.IntegrityToken{},
		&models.Usage{},
		&models.Trip{},
		&models.ErrorReport{},
		&models.BikeRating{},
		&models.Config{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

type stubVerifier struct {
	claims *services.VerifiedClaims
	err    error
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*services.VerifiedClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB, *stubVerifier) {
	t.Helper()
	t.Setenv("ADMIN_LOGIN", "admin:secret")

	db := newTestDB(t)
	verifier := &stubVerifier{
		claims: &services.VerifiedClaims{
			Subject:   "app-1",
			TokenID:   "jti-1",
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}

	app := fiber.New()
	SetupTokenRoutes(app,
		services.NewTokenPoolService(db),
		services.NewTokenHistoryService(db),
		services.NewTokenSourceService(db),
		verifier,
	)
	SetupStatisticsRoutes(app, services.NewTelemetryService(db))
	return app, db, verifier
}

func TestClaimRejectsBrowserUserAgent(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/api/token", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	req.Header.Set("X-User-ID", "user-1")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestClaimRequiresUserIDHeader(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/api/token", nil)
	req.Header.Set("User-Agent", "GiraBot/1.0")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestClaimExhaustedPoolReturns404(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/api/token", nil)
	req.Header.Set("User-Agent", "GiraBot/1.0")
	req.Header.Set("X-User-ID", "user-1")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestClaimReturnsRawTokenBody(t *testing.T) {
	app, db, _ := newTestApp(t)

	row := models.IntegrityToken{Token: "the-token", ExpiresAt: time.Now().Add(time.Hour)}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed token: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/token", nil)
	req.Header.Set("User-Agent", "GiraBot/1.0")
	req.Header.Set("X-User-ID", "user-1")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "the-token" {
		t.Fatalf("body = %q, want the raw token", body)
	}
}

func TestIngestStoresAndRejectsDuplicate(t *testing.T) {
	app, _, _ := newTestApp(t)

	deposit := func() int {
		req := httptest.NewRequest("POST", "/api/token", nil)
		req.Header.Set("X-Firebase-Token", "raw-jwt")
		req.Header.Set("X-Token-Source", "Harvester One")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		return resp.StatusCode
	}

	if status := deposit(); status != fiber.StatusOK {
		t.Fatalf("first deposit status = %d, want 200", status)
	}
	if status := deposit(); status != fiber.StatusConflict {
		t.Fatalf("duplicate deposit status = %d, want 409", status)
	}
}

func TestIngestSlugifiesSourceLabel(t *testing.T) {
	app, db, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/token", nil)
	req.Header.Set("X-Firebase-Token", "raw-jwt")
	req.Header.Set("X-Token-Source", "Harvester One")
	if _, err := app.Test(req); err != nil {
		t.Fatalf("request: %v", err)
	}

	var row models.IntegrityToken
	if err := db.Where("token = ?", "raw-jwt").First(&row).Error; err != nil {
		t.Fatalf("fetch row: %v", err)
	}
	if row.Source != "harvester-one" {
		t.Fatalf("source = %q, want harvester-one", row.Source)
	}
}

func TestIngestMissingTokenHeader(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/token", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIngestOversizedSourceLabel(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/token", nil)
	req.Header.Set("X-Firebase-Token", "raw-jwt")
	req.Header.Set("X-Token-Source", "this-label-is-well-over-thirty-two-characters-long")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIngestVerificationFailure(t *testing.T) {
	app, _, verifier := newTestApp(t)
	verifier.err = &services.VerificationError{Kind: services.VerificationExpired}

	req := httptest.NewRequest("POST", "/api/token", nil)
	req.Header.Set("X-Firebase-Token", "expired-jwt")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Token expired" {
		t.Fatalf("body = %q, want the sanitized message", body)
	}
}

func TestTokenStatsEndpoint(t *testing.T) {
	app, db, _ := newTestApp(t)

	row := models.IntegrityToken{Token: "t1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed token: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/token/stats", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var stats services.TokenStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalTokens != 1 || stats.AvailableTokens != 1 {
		t.Fatalf("stats = %+v, want one available token", stats)
	}
}

func TestAdminEndpointsRequireBasicAuth(t *testing.T) {
	app, _, _ := newTestApp(t)

	paths := []string{
		"/api/admin/tokens",
		"/api/admin/versions",
		"/api/statistics/admin/errors",
	}
	for _, path := range paths {
		req := httptest.NewRequest("GET", path, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request %s: %v", path, err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("unauthenticated %s status = %d, want 401", path, resp.StatusCode)
		}
	}

	req := httptest.NewRequest("GET", "/api/admin/tokens", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", resp.StatusCode)
	}
}

func TestAdminErrorSeriesTotal(t *testing.T) {
	app, db, _ := newTestApp(t)
	telemetry := services.NewTelemetryService(db)

	if _, err := telemetry.RecordError("device-1", "E1", "boom", "Gira+/1.0 ios/18.1"); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if _, err := telemetry.RecordError("device-2", "E2", "boom", "Gira+/2.0 ios/18.1"); err != nil {
		t.Fatalf("record error: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/statistics/admin/errors?groupBy=total&errorCodes=E1", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Data int64 `json:"data"`
		Meta struct {
			GroupBy string `json:"groupBy"`
		} `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data != 1 {
		t.Fatalf("filtered total = %d, want 1", body.Data)
	}
	if body.Meta.GroupBy != "total" {
		t.Fatalf("meta groupBy = %q, want total", body.Meta.GroupBy)
	}
}

func TestVersionSeriesRejectsBadTimezone(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/api/admin/versions?timezone=Not/AZone", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an invalid timezone", resp.StatusCode)
	}
}

func TestTelemetryPostsRequireAppUserAgent(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/statistics/usage", nil)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "curl/8.0")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a non-app user agent", resp.StatusCode)
	}
}
