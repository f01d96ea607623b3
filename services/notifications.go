package services

import (
	"encoding/json"
	"fmt"

	"coupon-cashback-system/models"

	"gorm.io/gorm"
)

// EnqueueNotification inserts a pending NotificationJob for the queue
// processor to pick up. Payload is template data for the email body.
func EnqueueNotification(db *gorm.DB, jobType, recipient string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	job := models.NotificationJob{
		Type:      jobType,
		Recipient: recipient,
		Payload:   string(data),
		Status:    models.NotificationStatusPending,
	}
	if err := db.Create(&job).Error; err != nil {
		return fmt.Errorf("failed to enqueue %s notification: %w", jobType, err)
	}
	return nil
}
