package service

import (
	"time"

	"telehealth/internal/models"

	"github.com/sirupsen/logrus"
)

// Broadcaster delivers a payload to every live connection of a user.
type Broadcaster interface {
	BroadcastToUser(userID uint, payload interface{})
}

// NotificationService pushes session lifecycle events to both participants.
// Delivery is best effort and never fails the caller.
type NotificationService struct {
	hub Broadcaster
}

func NewNotificationService(hub Broadcaster) *NotificationService {
	return &NotificationService{hub: hub}
}

type SessionEvent struct {
	Type      string                 `json:"type"`
	SessionID uint                   `json:"session_id"`
	Status    string                 `json:"status"`
	Media     string                 `json:"session_type"`
	At        time.Time              `json:"at"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

func (s *NotificationService) SessionEvent(eventType string, sess *models.Session, data map[string]interface{}) {
	if s == nil || s.hub == nil || sess == nil {
		return
	}
	ev := SessionEvent{
		Type:      eventType,
		SessionID: sess.ID,
		Status:    string(sess.Status),
		Media:     string(sess.Media),
		At:        time.Now().UTC(),
		Data:      data,
	}
	s.hub.BroadcastToUser(sess.PatientID, ev)
	if sess.DoctorID != nil {
		s.hub.BroadcastToUser(*sess.DoctorID, ev)
	}
	logrus.WithFields(logrus.Fields{
		"event":      eventType,
		"session_id": sess.ID,
	}).Debug("session event published")
}
