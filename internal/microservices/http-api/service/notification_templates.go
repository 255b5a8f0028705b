package service

import (
	"fmt"
	"strings"
	"time"

	"meetrix/internal/microservices/http-api/models"
)

// Builders used by booking, payment and event workflows to describe what happened.
// They only shape NotifyInput; NotificationService.Notify persists and publishes.

func actionURL(format string, args ...any) *string {
	url := fmt.Sprintf(format, args...)
	return &url
}

// BookingConfirmed creates a notification for a confirmed booking
func BookingConfirmed(bookingID, eventID int64, eventTitle string, tickets int) NotifyInput {
	return NotifyInput{
		Category:  models.CategoryBookingConfirmed,
		Title:     "Booking confirmed",
		Message:   fmt.Sprintf("Your %s for %s %s confirmed.", pluralize(tickets, "ticket"), eventTitle, isAre(tickets)),
		ActionURL: actionURL("/bookings/%d", bookingID),
		Metadata: map[string]any{
			"booking_id": bookingID,
			"event_id":   eventID,
			"tickets":    tickets,
		},
	}
}

// BookingCancelled creates a notification for a cancelled booking
func BookingCancelled(bookingID, eventID int64, eventTitle, reason string) NotifyInput {
	message := fmt.Sprintf("Your booking for %s was cancelled.", eventTitle)
	if reason != "" {
		message = fmt.Sprintf("Your booking for %s was cancelled: %s", eventTitle, reason)
	}
	return NotifyInput{
		Category:  models.CategoryBookingCancelled,
		Title:     "Booking cancelled",
		Message:   message,
		ActionURL: actionURL("/bookings/%d", bookingID),
		Metadata: map[string]any{
			"booking_id": bookingID,
			"event_id":   eventID,
		},
	}
}

// EventReminder reminds an attendee that an event starts soon
func EventReminder(eventID int64, eventTitle string, startsAt time.Time) NotifyInput {
	return NotifyInput{
		Category:  models.CategoryEventReminder,
		Title:     "Upcoming event",
		Message:   fmt.Sprintf("%s starts on %s.", eventTitle, startsAt.UTC().Format("Mon Jan 2, 15:04 MST")),
		ActionURL: actionURL("/events/%d", eventID),
		Metadata: map[string]any{
			"event_id":  eventID,
			"starts_at": startsAt.UTC().Format(time.RFC3339),
		},
	}
}

// EventCancelled tells attendees the organizer cancelled the event
func EventCancelled(eventID int64, eventTitle string) NotifyInput {
	return NotifyInput{
		Category:  models.CategoryEventCancelled,
		Title:     "Event cancelled",
		Message:   fmt.Sprintf("%s has been cancelled by the organizer. Refunds are on their way.", eventTitle),
		ActionURL: actionURL("/events/%d", eventID),
		Metadata: map[string]any{
			"event_id": eventID,
		},
	}
}

// EventUpdated lists the event fields the organizer changed
func EventUpdated(eventID int64, eventTitle string, changes []string) NotifyInput {
	message := fmt.Sprintf("%s was updated.", eventTitle)
	if len(changes) > 0 {
		message = fmt.Sprintf("%s updated: %s.", eventTitle, joinChanges(changes))
	}
	return NotifyInput{
		Category:  models.CategoryEventUpdated,
		Title:     "Event updated",
		Message:   message,
		ActionURL: actionURL("/events/%d", eventID),
		Metadata: map[string]any{
			"event_id":       eventID,
			"updated_fields": changes,
		},
	}
}

// GroupInvitation invites a user into a group booking
func GroupInvitation(groupID, eventID int64, inviter, eventTitle string) NotifyInput {
	return NotifyInput{
		Category:  models.CategoryGroupInvitation,
		Title:     "Group invitation",
		Message:   fmt.Sprintf("%s invited you to join their group for %s.", inviter, eventTitle),
		ActionURL: actionURL("/groups/%d", groupID),
		Metadata: map[string]any{
			"group_id": groupID,
			"event_id": eventID,
			"inviter":  inviter,
		},
	}
}

// PaymentFailed reports a declined or errored payment for a booking
func PaymentFailed(bookingID int64, eventTitle, reason string) NotifyInput {
	return NotifyInput{
		Category:  models.CategoryPaymentFailed,
		Title:     "Payment failed",
		Message:   fmt.Sprintf("We could not process the payment for %s: %s", eventTitle, reason),
		ActionURL: actionURL("/bookings/%d/payment", bookingID),
		Metadata: map[string]any{
			"booking_id": bookingID,
			"reason":     reason,
		},
	}
}

// ReviewRequest asks an attendee to review an event they attended
func ReviewRequest(eventID int64, eventTitle string) NotifyInput {
	return NotifyInput{
		Category:  models.CategoryReviewRequest,
		Title:     "How was it?",
		Message:   fmt.Sprintf("Tell us what you thought of %s.", eventTitle),
		ActionURL: actionURL("/events/%d/reviews/new", eventID),
		Metadata: map[string]any{
			"event_id": eventID,
		},
	}
}

// General is a free-form announcement
func General(title, message string) NotifyInput {
	return NotifyInput{
		Category: models.CategoryGeneral,
		Title:    title,
		Message:  message,
	}
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func isAre(n int) string {
	if n == 1 {
		return "is"
	}
	return "are"
}

// joinChanges joins field names into a readable list: "a", "a and b", "a, b, and c"
func joinChanges(changes []string) string {
	switch len(changes) {
	case 0:
		return "unknown fields"
	case 1:
		return changes[0]
	case 2:
		return changes[0] + " and " + changes[1]
	}
	last := changes[len(changes)-1]
	return strings.Join(changes[:len(changes)-1], ", ") + ", and " + last
}
