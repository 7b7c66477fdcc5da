package service

import (
	"context"

	"evocrm/internal/metrics"
	"evocrm/pkg/circuitbreaker"
	"evocrm/pkg/evolution"

	"github.com/sirupsen/logrus"
)

// avatarFetcher fetches profile pictures through the gateway, guarded by a
// circuit breaker so a degraded gateway cannot stall ingestion.
type avatarFetcher struct {
	gateway evolution.GatewayClient
	store   ContactStore
	media   MediaStore
	breaker *circuitbreaker.Breaker
	logger  *logrus.Logger
}

// NewAvatarFetcher wires an avatar fetcher. The breaker is shared across all
// contacts so repeated gateway failures back off globally.
func NewAvatarFetcher(gateway evolution.GatewayClient, store ContactStore, media MediaStore, breaker *circuitbreaker.Breaker, logger *logrus.Logger) AvatarFetcher {
	return &avatarFetcher{
		gateway: gateway,
		store:   store,
		media:   media,
		breaker: breaker,
		logger:  logger,
	}
}

// FetchAndStoreIfAbsent attaches the contact's profile picture unless one is
// already recorded. It reports whether the contact has an avatar on return,
// so a repeat call for a covered contact is a cheap true without touching the
// gateway. All failures are logged and swallowed: avatars are decoration, not
// data the pipeline depends on.
func (f *avatarFetcher) FetchAndStoreIfAbsent(ctx context.Context, contactID int64, jid, instance string) bool {
	contact, err := f.store.GetContactByID(ctx, contactID)
	if err != nil || contact == nil {
		f.logger.WithError(err).WithField(LogFieldContactID, contactID).Warn("Avatar fetch skipped, contact lookup failed")
		return false
	}
	if contact.HasAvatar() {
		return true
	}

	var avatarURL string
	err = f.breaker.Execute(ctx, func(ctx context.Context) error {
		var fetchErr error
		avatarURL, fetchErr = f.gateway.FetchProfilePictureURL(ctx, instance, jid)
		return fetchErr
	})
	if err != nil {
		if circuitbreaker.IsOpenError(err) {
			f.logger.WithField(LogFieldContactID, contactID).Debug("Avatar fetch skipped, gateway breaker open")
		} else {
			f.logger.WithError(err).WithField(LogFieldContactID, contactID).Warn("Avatar URL fetch failed")
		}
		metrics.IncrementCounter("avatar_fetch_failures", nil, "Avatar fetch failures")
		return false
	}
	if avatarURL == "" {
		// Contact has no avatar or hides it. Nothing to store.
		return false
	}

	attachmentID, err := f.media.Download(ctx, avatarURL)
	if err != nil {
		f.logger.WithError(err).WithField(LogFieldContactID, contactID).Warn("Avatar download failed")
		metrics.IncrementCounter("avatar_fetch_failures", nil, "Avatar fetch failures")
		return false
	}

	applied, err := f.store.SetContactAvatar(ctx, contactID, attachmentID)
	if err != nil {
		f.logger.WithError(err).WithField(LogFieldContactID, contactID).Warn("Avatar attach failed")
		return false
	}
	if !applied {
		// Another fetch won the race. The contact still ends up covered; the
		// orphaned attachment row is left for the retention job.
		return true
	}

	metrics.IncrementCounter("avatar_fetched", map[string]string{"instance": instance}, "Avatars attached to contacts")
	f.logger.WithFields(logrus.Fields{
		LogFieldContactID: contactID,
		"attachment_id":   attachmentID,
	}).Debug("Avatar attached")
	return true
}
