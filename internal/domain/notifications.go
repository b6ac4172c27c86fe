package domain

import "time"

type NotificationType string

const (
	NotificationSucceeded NotificationType = "parkmeter.event.succeeded"
	NotificationWarning   NotificationType = "parkmeter.event.warning"
	NotificationError     NotificationType = "parkmeter.event.error"
)

// AccessNotification is pushed to websocket clients and device topics after
// every registration attempt.
type AccessNotification struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"eventType"`
	Subject    string           `json:"subject"`
	EventTime  time.Time        `json:"eventTime"`
	FacilityID int              `json:"facilityId,omitempty"`
	Access     *VehicleAccess   `json:"access,omitempty"`
	// BusySpaces is set only when the aggregate was updated.
	BusySpaces *int `json:"busySpaces,omitempty"`
}

// NotificationFor maps a registration outcome to the notification sent for it.
func NotificationFor(id string, access VehicleAccess, res PersistenceResult, agg *StatusAggregate, now time.Time) AccessNotification {
	n := AccessNotification{
		ID:         id,
		EventTime:  now.UTC(),
		FacilityID: access.FacilityID,
		Access:     &access,
	}
	switch res.State {
	case ResultCompleted:
		n.Type = NotificationSucceeded
		n.Subject = "Vehicle: " + access.VehicleID + " - Direction: " + access.Direction.String()
	case ResultCompletedWithWarnings:
		n.Type = NotificationWarning
		n.Subject = "Vehicle: " + access.VehicleID + " registered, status not updated: " + res.Message
	default:
		n.Type = NotificationError
		n.Subject = "Save to ledger failed: " + res.Message
	}
	if agg != nil {
		busy := agg.BusySpaces
		n.BusySpaces = &busy
	}
	return n
}
