// models/config.go
package models

import (
	"time"
)

// Config holds the single message-of-the-day row shown in the app.
type Config struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	Message           string    `json:"message" gorm:"default:''"`
	MessageEn         string    `json:"message_en" gorm:"default:''"`
	MessageShowAlways bool      `json:"message_show_always" gorm:"default:false"`
	MessageTimestamp  time.Time `json:"message_timestamp" gorm:"autoCreateTime"`
}
