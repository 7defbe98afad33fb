package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownValue is wrapped by every Parse function in this package.
var ErrUnknownValue = errors.New("unknown value")

// Media is the consultation channel of a session and selects the subscription counter it bills.
type Media string

const (
	MediaText  Media = "text"
	MediaVoice Media = "voice"
	MediaVideo Media = "video"
)

var AllMedia = []Media{MediaText, MediaVoice, MediaVideo}

// ParseMedia accepts the canonical names plus "audio", which older clients send for voice.
func ParseMedia(s string) (Media, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return MediaText, nil
	case "voice", "audio":
		return MediaVoice, nil
	case "video":
		return MediaVideo, nil
	}
	return "", fmt.Errorf("%w: session type %q", ErrUnknownValue, s)
}

func (m Media) Valid() bool {
	return m == MediaText || m == MediaVoice || m == MediaVideo
}

func (m Media) TextEnabled() bool { return m == MediaText }
func (m Media) CallEnabled() bool { return m == MediaVoice || m == MediaVideo }

// SessionTable names the session kind recorded on wallet transactions.
func (m Media) SessionTable() string {
	if m == MediaText {
		return "text_sessions"
	}
	return "call_sessions"
}

type SessionStatus string

const (
	SessionScheduled        SessionStatus = "scheduled"
	SessionWaitingForDoctor SessionStatus = "waiting_for_doctor"
	SessionActive           SessionStatus = "active"
	SessionEnded            SessionStatus = "ended"
	SessionExpired          SessionStatus = "expired"
	SessionCancelled        SessionStatus = "cancelled"
)

// BusyStatuses are the states that occupy a patient or a doctor.
var BusyStatuses = []SessionStatus{SessionWaitingForDoctor, SessionActive}

func ParseSessionStatus(s string) (SessionStatus, error) {
	switch st := SessionStatus(s); st {
	case SessionScheduled, SessionWaitingForDoctor, SessionActive,
		SessionEnded, SessionExpired, SessionCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: session status %q", ErrUnknownValue, s)
}

func (s SessionStatus) IsTerminal() bool {
	return s == SessionEnded || s == SessionExpired || s == SessionCancelled
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionScheduled:        {SessionWaitingForDoctor, SessionExpired, SessionCancelled},
	SessionWaitingForDoctor: {SessionActive, SessionExpired, SessionCancelled},
	SessionActive:           {SessionEnded, SessionExpired},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to SessionStatus) bool {
	for _, s := range sessionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type EndReason string

const (
	EndReasonManual             EndReason = "manual_end"
	EndReasonNoResponse         EndReason = "no_response"
	EndReasonInactivity         EndReason = "inactivity"
	EndReasonQuotaExhausted     EndReason = "quota_exhausted"
	EndReasonCancelledByPatient EndReason = "cancelled_by_patient"
	EndReasonMissed             EndReason = "missed"
)

type AppointmentStatus string

const (
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentMissed     AppointmentStatus = "missed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
)

func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(s); st {
	case AppointmentConfirmed, AppointmentInProgress, AppointmentCompleted,
		AppointmentMissed, AppointmentCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: appointment status %q", ErrUnknownValue, s)
}
