package iot

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/domain"
)

// PublishAPI is the subset of the IoT data plane client the publisher uses.
type PublishAPI interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

func StatusTopic(facilityID int) string {
	return fmt.Sprintf("parkmeter/%d/status", facilityID)
}

// StatusPublisher pushes the busy count of a facility to its MQTT topic so
// displays at the gates can update.
type StatusPublisher struct {
	client PublishAPI
	log    *zap.Logger
}

func NewStatusPublisher(client PublishAPI, log *zap.Logger) *StatusPublisher {
	return &StatusPublisher{client: client, log: log.Named("iot")}
}

func (p *StatusPublisher) Publish(ctx context.Context, snapshot domain.StatusSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("StatusPublisher.Publish: %w", err)
	}
	_, err = p.client.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(StatusTopic(snapshot.FacilityID)),
		Qos:     1,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("StatusPublisher.Publish: %w", err)
	}
	return nil
}

// Notify publishes the occupancy carried by successful notifications.
func (p *StatusPublisher) Notify(ctx context.Context, n domain.AccessNotification) {
	if n.BusySpaces == nil || n.FacilityID <= 0 {
		return
	}
	snapshot := domain.StatusSnapshot{FacilityID: n.FacilityID, BusySpaces: *n.BusySpaces}
	if err := p.Publish(ctx, snapshot); err != nil {
		p.log.Warn("occupancy publish failed", zap.Int("facility_id", n.FacilityID), zap.Error(err))
	}
}
