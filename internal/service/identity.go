package service

import (
	"context"
	"fmt"
	"time"

	"evocrm/internal/constants"
	"evocrm/internal/database"
	"evocrm/internal/metrics"
	"evocrm/internal/models"
	"evocrm/internal/validation"

	"github.com/sirupsen/logrus"
)

// identityResolver implements IdentityResolver on top of the contact store.
// Resolution never updates an existing contact: the first observed push name
// and instance stick, later deliveries only read the row.
type identityResolver struct {
	store       ContactStore
	avatars     AvatarFetcher
	logger      *logrus.Logger
	usePushName bool
	defaultTag  func() string
	// avatarTimeout bounds the detached avatar fetch spawned after creation.
	avatarTimeout time.Duration
}

// NewIdentityResolver wires a resolver over the contact store. defaultTag
// supplies the lifecycle tag assigned to newly created contacts; it is a
// function so config reloads take effect without a restart. avatars may be
// nil when avatar fetching is disabled.
func NewIdentityResolver(store ContactStore, avatars AvatarFetcher, cfg models.GatewayConfig, defaultTag func() string, logger *logrus.Logger) IdentityResolver {
	timeout := time.Duration(cfg.AvatarTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultAvatarTimeoutSec) * time.Second
	}
	return &identityResolver{
		store:         store,
		avatars:       avatars,
		logger:        logger,
		usePushName:   cfg.UsePushName,
		defaultTag:    defaultTag,
		avatarTimeout: timeout,
	}
}

// ResolveOrCreate returns the contact id for a sender JID, creating the
// contact on first sight. ok is false when the JID cannot map to a contact,
// which the caller treats as "persist without contact linkage", never as a
// reason to drop the message.
func (r *identityResolver) ResolveOrCreate(ctx context.Context, jid, pushName, instance string) (int64, bool) {
	if !validation.IsIndividualJID(jid) {
		// Group and broadcast JIDs never become contacts.
		return 0, false
	}

	contact, err := r.store.GetContactByJID(ctx, jid)
	if err != nil {
		r.logger.WithError(err).WithField(LogFieldJID, SanitizeJID(ctx, jid)).Error("Contact lookup failed")
		return 0, false
	}
	if contact != nil {
		return contact.ID, true
	}

	id, err := r.createContact(ctx, jid, pushName, instance)
	if err != nil {
		r.logger.WithError(err).WithField(LogFieldJID, SanitizeJID(ctx, jid)).Error("Contact creation failed")
		metrics.IncrementCounter("identity_create_failures", nil, "Contact creation failures")
		return 0, false
	}

	metrics.IncrementCounter("identity_created", map[string]string{"instance": instance}, "Contacts created from webhook senders")
	r.logger.WithFields(logrus.Fields{
		LogFieldContactID: id,
		LogFieldJID:       SanitizeJID(ctx, jid),
		LogFieldInstance:  instance,
	}).Info("Created contact for new sender")

	if r.avatars != nil {
		go r.fetchAvatar(id, jid, instance)
	}

	return id, true
}

func (r *identityResolver) createContact(ctx context.Context, jid, pushName, instance string) (int64, error) {
	phone := validation.PhoneFromJID(jid)
	if phone == "" {
		return 0, fmt.Errorf("jid has no numeric part")
	}

	login := constants.DefaultContactLoginPrefix + phone

	displayName := login
	if r.usePushName && pushName != "" {
		displayName = pushName
	}

	tag := ""
	if r.defaultTag != nil {
		tag = r.defaultTag()
	}
	if tag == "" {
		tag = constants.DefaultLifecycleTag
	}

	contact := &models.Contact{
		JID:          jid,
		Phone:        phone,
		Login:        login,
		Email:        login + "@" + constants.DefaultContactEmailDomain,
		DisplayName:  displayName,
		LifecycleTag: tag,
		InstanceName: instance,
	}

	id, err := r.store.CreateContact(ctx, contact)
	if err == nil {
		return id, nil
	}

	// A concurrent delivery may have created the same JID between our lookup
	// and insert. The existing row wins.
	if database.IsUniqueViolation(err, "contacts.jid") {
		existing, lookupErr := r.store.GetContactByJID(ctx, jid)
		if lookupErr == nil && existing != nil {
			return existing.ID, nil
		}
		return 0, fmt.Errorf("jid collision but re-fetch failed: %w", err)
	}

	// A login collision means a different JID already produced this login
	// (re-registered number). Retry once with a unique suffix.
	if database.IsUniqueViolation(err, "contacts.login") {
		suffix := fmt.Sprintf("_%d", time.Now().Unix())
		contact.Login += suffix
		contact.Email = contact.Login + "@" + constants.DefaultContactEmailDomain
		return r.store.CreateContact(ctx, contact)
	}

	return 0, err
}

func (r *identityResolver) fetchAvatar(contactID int64, jid, instance string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.avatarTimeout)
	defer cancel()
	r.avatars.FetchAndStoreIfAbsent(ctx, contactID, jid, instance)
}
