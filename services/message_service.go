// services/message_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"token-pool-system/models"

	"gorm.io/gorm"
)

// MessageService reads and updates the single message-of-the-day row.
type MessageService struct {
	DB *gorm.DB
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{DB: db}
}

// EnsureDefault creates the config row if the table is empty, so Get/Update
// always have a row to work with.
func (s *MessageService) EnsureDefault() error {
	var cfg models.Config
	err := s.DB.First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.DB.Create(&models.Config{}).Error
	}
	return err
}

func (s *MessageService) Get() (*models.Config, error) {
	var cfg models.Config
	err := s.DB.First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// no row yet: the app just sees an empty message
		return &models.Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	return &cfg, nil
}

func (s *MessageService) Update(message, messageEn string, showAlways bool) error {
	var cfg models.Config
	err := s.DB.First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConfigMissing
	}
	if err != nil {
		return fmt.Errorf("fetch config: %w", err)
	}

	updates := map[string]interface{}{
		"message":             message,
		"message_en":          messageEn,
		"message_show_always": showAlways,
		"message_timestamp":   time.Now(),
	}
	if err := s.DB.Model(&cfg).Updates(updates).Error; err != nil {
		return fmt.Errorf("update config: %w", err)
	}
	return nil
}
