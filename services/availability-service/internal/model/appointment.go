package model

import "time"

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

type Appointment struct {
	ID         string
	ScheduleID string
	Start      time.Time
	End        time.Time
	Status     AppointmentStatus
}

func (a Appointment) Cancelled() bool {
	return a.Status == AppointmentCancelled
}
