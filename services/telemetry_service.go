// services/telemetry_service.go
package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"token-pool-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	recentErrorsWindow = 72 * time.Hour
	recentErrorsLimit  = 50

	// Bounds on the version-distribution sliding window: a device counts
	// toward a time point only while its last report is this recent.
	defaultVersionWindowDays = 2
	maxVersionWindowDays     = 7
)

// TelemetryService stores the app's usage/trip/error/rating reports and
// answers the aggregate queries over them. All rows are append-only.
type TelemetryService struct {
	DB *gorm.DB
}

func NewTelemetryService(db *gorm.DB) *TelemetryService {
	return &TelemetryService{DB: db}
}

func (s *TelemetryService) RecordUsage(deviceID, appVersion, osName, osVersion string) error {
	if deviceID == "" {
		return NewValidationError("deviceId is required")
	}
	row := models.Usage{
		DeviceID:   deviceID,
		AppVersion: appVersion,
		OS:         osName,
		OSVersion:  osVersion,
	}
	if err := s.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("store usage event: %w", err)
	}
	return nil
}

func (s *TelemetryService) RecordTrip(deviceID, bikeSerial, stationSerial string) error {
	if deviceID == "" {
		return NewValidationError("deviceId is required")
	}
	row := models.Trip{
		DeviceID:      deviceID,
		BikeSerial:    bikeSerial,
		StationSerial: stationSerial,
	}
	if err := s.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("store trip event: %w", err)
	}
	return nil
}

// RecordError stores an error report and returns the report id the app can
// quote in support requests.
func (s *TelemetryService) RecordError(deviceID, errorCode, errorMessage, userAgent string) (string, error) {
	if deviceID == "" {
		return "", NewValidationError("deviceId is required")
	}
	row := models.ErrorReport{
		ReportID:     uuid.NewString(),
		DeviceID:     deviceID,
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
		UserAgent:    userAgent,
	}
	if err := s.DB.Create(&row).Error; err != nil {
		return "", fmt.Errorf("store error report: %w", err)
	}
	return row.ReportID, nil
}

func (s *TelemetryService) RecordRating(deviceID, bikeSerial string, rating int) error {
	if deviceID == "" {
		return NewValidationError("deviceId is required")
	}
	if bikeSerial == "" {
		return NewValidationError("bikeSerial is required")
	}
	if rating < 1 || rating > 5 {
		return NewValidationError("rating must be a number between 1 and 5")
	}
	row := models.BikeRating{
		DeviceID:   deviceID,
		BikeSerial: bikeSerial,
		Rating:     rating,
	}
	if err := s.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("store bike rating: %w", err)
	}
	return nil
}

// UsageSample is one bucket of the unique-devices series.
type UsageSample struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int64     `json:"count"`
}

// UsageSeries counts distinct devices per hour/day bucket over [start, end),
// with empty buckets zero-filled via generate_series. Postgres-only, like the
// rest of the production store.
func (s *TelemetryService) UsageSeries(start, end time.Time, groupBy string) ([]UsageSample, error) {
	if groupBy != "hour" && groupBy != "day" {
		return nil, NewValidationError("groupBy must be hour, day or total")
	}
	interval := "1 hour"
	if groupBy == "day" {
		interval = "1 day"
	}

	query := fmt.Sprintf(`
		WITH series AS (
			SELECT generate_series(
				DATE_TRUNC('%[1]s', ?::timestamp),
				DATE_TRUNC('%[1]s', ?::timestamp),
				'%[2]s'::interval
			) AS time_point
		),
		counts AS (
			SELECT DATE_TRUNC('%[1]s', u.timestamp) AS grouped_time,
			       COUNT(DISTINCT u.device_id) AS user_count
			FROM usages AS u
			WHERE u.timestamp >= ? AND u.timestamp < ?
			GROUP BY grouped_time
		)
		SELECT series.time_point AS timestamp,
		       COALESCE(counts.user_count, 0) AS count
		FROM series
		LEFT JOIN counts ON series.time_point = counts.grouped_time
		ORDER BY series.time_point`, groupBy, interval)

	var samples []UsageSample
	if err := s.DB.Raw(query, start, end, start, end).Scan(&samples).Error; err != nil {
		return nil, fmt.Errorf("fetch usage series: %w", err)
	}
	return samples, nil
}

// UsageTotal counts distinct devices seen in [start, end).
func (s *TelemetryService) UsageTotal(start, end time.Time) (int64, error) {
	var count int64
	err := s.DB.Model(&models.Usage{}).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Distinct("device_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unique devices: %w", err)
	}
	return count, nil
}

// versionUserAgentPattern matches reports sent by a given app version,
// whose user agents start with "Gira+/<version>".
func versionUserAgentPattern(version string) string {
	return "Gira+/" + version + "%"
}

// errorReports narrows the error-report table to [start, end) plus the
// optional code and app-version filters shared by the admin error queries.
func (s *TelemetryService) errorReports(start, end time.Time, errorCodes, versions []string) *gorm.DB {
	q := s.DB.Model(&models.ErrorReport{}).
		Where("timestamp >= ? AND timestamp < ?", start, end)
	if len(errorCodes) > 0 {
		q = q.Where("error_code IN ?", errorCodes)
	}
	if len(versions) > 0 {
		byVersion := s.DB.Where("user_agent LIKE ?", versionUserAgentPattern(versions[0]))
		for _, v := range versions[1:] {
			byVersion = byVersion.Or("user_agent LIKE ?", versionUserAgentPattern(v))
		}
		q = q.Where(byVersion)
	}
	return q
}

// ErrorTotal counts error reports in [start, end) under the given filters.
func (s *TelemetryService) ErrorTotal(start, end time.Time, errorCodes, versions []string) (int64, error) {
	var count int64
	if err := s.errorReports(start, end, errorCodes, versions).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count error reports: %w", err)
	}
	return count, nil
}

// ErrorSeries counts error reports per hour/day bucket over [start, end),
// zero-filling empty buckets and truncating bucket edges in the given IANA
// timezone. Same Postgres generate_series shape as UsageSeries.
func (s *TelemetryService) ErrorSeries(start, end time.Time, groupBy, timezone string, errorCodes, versions []string) ([]UsageSample, error) {
	if groupBy != "hour" && groupBy != "day" {
		return nil, NewValidationError("groupBy must be hour, day or total")
	}
	interval := "1 hour"
	if groupBy == "day" {
		interval = "1 day"
	}

	filter := "e.timestamp >= ? AND e.timestamp < ?"
	filterArgs := []interface{}{start, end}
	if len(errorCodes) > 0 {
		filter += " AND e.error_code IN ?"
		filterArgs = append(filterArgs, errorCodes)
	}
	if len(versions) > 0 {
		patterns := make([]string, len(versions))
		for i, v := range versions {
			patterns[i] = "e.user_agent LIKE ?"
			filterArgs = append(filterArgs, versionUserAgentPattern(v))
		}
		filter += " AND (" + strings.Join(patterns, " OR ") + ")"
	}

	query := fmt.Sprintf(`
		WITH series AS (
			SELECT generate_series(
				DATE_TRUNC('%[1]s', ?::timestamp AT TIME ZONE 'UTC' AT TIME ZONE ?),
				DATE_TRUNC('%[1]s', ?::timestamp AT TIME ZONE 'UTC' AT TIME ZONE ?),
				'%[2]s'::interval
			) AS time_point
		),
		counts AS (
			SELECT DATE_TRUNC('%[1]s', e.timestamp AT TIME ZONE 'UTC' AT TIME ZONE ?) AS grouped_time,
			       COUNT(*) AS error_count
			FROM error_reports AS e
			WHERE %[3]s
			GROUP BY grouped_time
		)
		SELECT series.time_point AS timestamp,
		       COALESCE(counts.error_count, 0) AS count
		FROM series
		LEFT JOIN counts ON series.time_point = counts.grouped_time
		ORDER BY series.time_point`, groupBy, interval, filter)

	args := append([]interface{}{start, timezone, end, timezone, timezone}, filterArgs...)

	var samples []UsageSample
	if err := s.DB.Raw(query, args...).Scan(&samples).Error; err != nil {
		return nil, fmt.Errorf("fetch error series: %w", err)
	}
	return samples, nil
}

// VersionDataset is one app version's device-count series, shaped for a
// stacked dashboard chart.
type VersionDataset struct {
	Label string        `json:"label"`
	Data  []UsageSample `json:"data"`
}

type versionCountRow struct {
	Timestamp  time.Time
	AppVersion string
	Count      int64
}

// VersionSeries reconstructs the app-version distribution over time: at each
// hour/day point it counts, per version, the devices whose most recent usage
// report inside the sliding window carried that version. A device that stops
// reporting drops out once the window passes; one that upgrades moves between
// datasets. Postgres-only (DISTINCT ON + generate_series).
func (s *TelemetryService) VersionSeries(start, end time.Time, groupBy, timezone string, windowDays int, platform string) ([]VersionDataset, error) {
	if groupBy != "hour" && groupBy != "day" {
		return nil, NewValidationError("groupBy must be hour or day")
	}
	interval := "1 hour"
	if groupBy == "day" {
		interval = "1 day"
	}
	if windowDays < 1 {
		windowDays = defaultVersionWindowDays
	}
	if windowDays > maxVersionWindowDays {
		windowDays = maxVersionWindowDays
	}

	platformFilter := ""
	args := []interface{}{start, timezone, end, timezone, start}
	if platform != "" {
		platformFilter = "AND u.os = ?"
		args = append(args, platform)
	}

	query := fmt.Sprintf(`
		WITH series AS (
			SELECT generate_series(
				DATE_TRUNC('%[1]s', ?::timestamp AT TIME ZONE 'UTC' AT TIME ZONE ?),
				DATE_TRUNC('%[1]s', ?::timestamp AT TIME ZONE 'UTC' AT TIME ZONE ?),
				'%[2]s'::interval
			) AS time_point
		),
		device_versions AS (
			SELECT DISTINCT ON (series.time_point, u.device_id)
			       series.time_point,
			       u.device_id,
			       u.app_version
			FROM series
			JOIN usages AS u
			  ON u.timestamp <= series.time_point
			 AND u.timestamp >= ?
			 AND u.timestamp >= series.time_point - '%[3]d days'::interval
			 AND u.app_version <> ''
			 %[4]s
			ORDER BY series.time_point, u.device_id, u.timestamp DESC
		),
		version_counts AS (
			SELECT time_point, app_version, COUNT(DISTINCT device_id) AS unique_devices
			FROM device_versions
			GROUP BY time_point, app_version
		),
		all_versions AS (
			SELECT DISTINCT app_version FROM version_counts
		)
		SELECT series.time_point AS timestamp,
		       all_versions.app_version AS app_version,
		       COALESCE(version_counts.unique_devices, 0) AS count
		FROM series
		CROSS JOIN all_versions
		LEFT JOIN version_counts
		  ON version_counts.time_point = series.time_point
		 AND version_counts.app_version = all_versions.app_version
		ORDER BY series.time_point, all_versions.app_version`,
		groupBy, interval, windowDays, platformFilter)

	var rows []versionCountRow
	if err := s.DB.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch version series: %w", err)
	}
	return buildVersionDatasets(rows), nil
}

// buildVersionDatasets pivots the flat (time, version, count) rows into one
// dataset per version, versions sorted, samples in time order.
func buildVersionDatasets(rows []versionCountRow) []VersionDataset {
	byVersion := make(map[string][]UsageSample)
	for _, r := range rows {
		byVersion[r.AppVersion] = append(byVersion[r.AppVersion], UsageSample{
			Timestamp: r.Timestamp,
			Count:     r.Count,
		})
	}

	labels := make([]string, 0, len(byVersion))
	for label := range byVersion {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	datasets := make([]VersionDataset, 0, len(labels))
	for _, label := range labels {
		datasets = append(datasets, VersionDataset{Label: label, Data: byVersion[label]})
	}
	return datasets
}

type RecentErrors struct {
	ErrorCount int64                `json:"errorCount"`
	Errors     []models.ErrorReport `json:"errors"`
}

// RecentErrors returns the last three days of error reports for the admin
// dashboard, newest first.
func (s *TelemetryService) RecentErrors() (*RecentErrors, error) {
	since := time.Now().Add(-recentErrorsWindow)

	report := &RecentErrors{}
	if err := s.DB.Model(&models.ErrorReport{}).
		Where("timestamp >= ?", since).
		Count(&report.ErrorCount).Error; err != nil {
		return nil, fmt.Errorf("count recent errors: %w", err)
	}

	if err := s.DB.
		Where("timestamp >= ?", since).
		Order("timestamp DESC").
		Limit(recentErrorsLimit).
		Find(&report.Errors).Error; err != nil {
		return nil, fmt.Errorf("fetch recent errors: %w", err)
	}
	return report, nil
}
