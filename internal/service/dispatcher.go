package service

import (
	"context"
	"strings"

	"evocrm/internal/metrics"
	"evocrm/internal/models"
	"evocrm/internal/validation"

	"github.com/sirupsen/logrus"
)

// WebhookDispatcher routes validated webhook envelopes to the right handler.
// Dispatch errors are internal: the HTTP layer acknowledges every delivery
// regardless, so the gateway never retries into a poison loop.
type WebhookDispatcher struct {
	ingestor MessageIngestor
	logger   *logrus.Logger
}

func NewWebhookDispatcher(ingestor MessageIngestor, logger *logrus.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		ingestor: ingestor,
		logger:   logger,
	}
}

// NormalizeEvent maps the gateway's inconsistent event spellings onto the
// canonical dotted form ("MESSAGES_UPSERT" and "messages-upsert" both become
// "messages.upsert").
func NormalizeEvent(event string) string {
	normalized := strings.ToLower(event)
	normalized = strings.ReplaceAll(normalized, "_", ".")
	normalized = strings.ReplaceAll(normalized, "-", ".")
	return normalized
}

// Dispatch processes one envelope. The returned error reports the internal
// outcome for logging; callers must not translate it into a non-2xx response.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, envelope *models.WebhookEnvelope) error {
	if err := validation.ValidateEnvelope(envelope); err != nil {
		metrics.IncrementCounter("webhook_malformed", nil, "Webhook deliveries failing envelope validation")
		return err
	}

	event := NormalizeEvent(envelope.Event)
	log := d.logger.WithFields(logrus.Fields{
		LogFieldEvent:    event,
		LogFieldInstance: envelope.Instance,
	})

	switch event {
	case models.EventMessagesUpsert:
		result, err := d.ingestor.Ingest(ctx, envelope)
		if err != nil {
			log.WithError(err).Error("Message ingestion failed")
			return err
		}
		log.WithFields(logrus.Fields{
			"outcome":         string(result.Outcome),
			LogFieldMessageID: result.MessageID,
		}).Debug("Message event processed")
		return nil

	case models.EventMessagesUpdate, models.EventContactsUpdate,
		models.EventConnectionUpdate, models.EventQRCodeUpdated:
		// Known event types the pipeline deliberately does not act on.
		log.Debug("Ignoring non-ingested event type")
		metrics.IncrementCounter("webhook_ignored", map[string]string{"event": event}, "Known but unhandled webhook events")
		return nil

	default:
		log.Debug("Ignoring unknown event type")
		metrics.IncrementCounter("webhook_unknown_event", nil, "Webhook deliveries with unknown event types")
		return nil
	}
}
