// models/telemetry.go
package models

import (
	"time"
)

// Append-only telemetry rows reported by the app. No lifecycle beyond
// insert + query.

type Usage struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	DeviceID   string    `json:"device_id" gorm:"size:64;not null;index"`
	Timestamp  time.Time `json:"timestamp" gorm:"autoCreateTime;index"`
	AppVersion string    `json:"app_version" gorm:"size:32"`
	OS         string    `json:"os" gorm:"size:32"`
	OSVersion  string    `json:"os_version" gorm:"size:32"`
}

type Trip struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	DeviceID      string    `json:"device_id" gorm:"size:64;not null;index"`
	Timestamp     time.Time `json:"timestamp" gorm:"autoCreateTime"`
	BikeSerial    string    `json:"bike_serial" gorm:"size:32"`
	StationSerial string    `json:"station_serial" gorm:"size:32"`
}

type ErrorReport struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ReportID     string    `json:"report_id" gorm:"size:36;index"` // uuid handed back to the app for support requests
	DeviceID     string    `json:"device_id" gorm:"size:64;not null;index"`
	Timestamp    time.Time `json:"timestamp" gorm:"autoCreateTime;index"`
	ErrorCode    string    `json:"error_code" gorm:"size:64"`
	ErrorMessage string    `json:"error_message"`
	UserAgent    string    `json:"user_agent"`
}

type BikeRating struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	DeviceID   string    `json:"device_id" gorm:"size:64;not null"`
	Timestamp  time.Time `json:"timestamp" gorm:"autoCreateTime"`
	BikeSerial string    `json:"bike_serial" gorm:"size:32;not null"`
	Rating     int       `json:"rating" gorm:"check:rating >= 1 and rating <= 5"`
}
