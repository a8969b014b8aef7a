// README: FCM push of route offers to a per-driver topic.
package matching

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"firebase.google.com/go/v4/messaging"

	"marketpace/internal/modules/notify"
	"marketpace/internal/modules/route"
	"marketpace/internal/types"
)

type FCMOfferSender struct {
	sender notify.Sender
}

func NewFCMOfferSender(sender notify.Sender) *FCMOfferSender {
	return &FCMOfferSender{sender: sender}
}

func DriverTopic(driverID types.ID) string {
	return "driver_" + string(driverID)
}

func (f *FCMOfferSender) SendOffer(ctx context.Context, driverID types.ID, offer route.Offer) error {
	msg := &messaging.Message{
		Topic: DriverTopic(driverID),
		Data: map[string]string{
			"type":               "route_offer",
			"route_id":           string(offer.RouteID),
			"time_slot":          offer.TimeSlot,
			"start_time":         offer.StartTime.UTC().Format(time.RFC3339),
			"stops":              strconv.Itoa(offer.Stops),
			"total_miles":        strconv.FormatFloat(offer.TotalMiles, 'f', 1, 64),
			"estimated_earnings": offer.EstimatedEarnings.String(),
		},
		Notification: &messaging.Notification{
			Title: "New route nearby",
			Body:  fmt.Sprintf("%d stops, %.1f mi, earn %s", offer.Stops, offer.TotalMiles, offer.EstimatedEarnings),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if _, err := f.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending offer to %s: %w", DriverTopic(driverID), err)
	}
	return nil
}
