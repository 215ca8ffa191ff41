package email

import (
	"fmt"
	"time"
)

const timeLayout = "Mon, 02 Jan 2006 15:04 MST"

func AppointmentBooked(to, counterpart string, start time.Time) Message {
	return Message{
		To:      to,
		Subject: "Appointment booked",
		Body: fmt.Sprintf("Your appointment with %s is scheduled for %s.\n",
			counterpart, start.Format(timeLayout)),
	}
}

func AppointmentCancelled(to, counterpart string, start time.Time) Message {
	return Message{
		To:      to,
		Subject: "Appointment cancelled",
		Body: fmt.Sprintf("Your appointment with %s on %s has been cancelled.\n",
			counterpart, start.Format(timeLayout)),
	}
}

func AppointmentCompleted(to, counterpart string) Message {
	return Message{
		To:      to,
		Subject: "Appointment completed",
		Body:    fmt.Sprintf("Your appointment with %s has been marked as completed.\n", counterpart),
	}
}

func DoctorApproved(to, name string) Message {
	return Message{
		To:      to,
		Subject: "Your account has been verified",
		Body:    fmt.Sprintf("Hello %s,\n\nYour credentials have been verified. Patients can now book appointments with you.\n", name),
	}
}

func DoctorRejected(to, name string) Message {
	return Message{
		To:      to,
		Subject: "Your verification request was declined",
		Body:    fmt.Sprintf("Hello %s,\n\nWe could not verify your credentials. Please contact support for details.\n", name),
	}
}
