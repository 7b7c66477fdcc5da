package validation

import (
	"fmt"
	"strings"
	"unicode"

	"evocrm/internal/errors"
	"evocrm/internal/models"
)

// JID domain suffixes used by the messaging network.
const (
	IndividualSuffix = "@s.whatsapp.net"
	LegacySuffix     = "@c.us"
	GroupSuffix      = "@g.us"
	BroadcastSuffix  = "@broadcast"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 20
	maxMessageID   = 256
)

// IsIndividualJID reports whether the address belongs to a single contact,
// as opposed to a group or broadcast list. Only group and broadcast
// addresses are excluded; any other domain is treated as an individual so
// that new server-side address formats keep resolving to contacts.
func IsIndividualJID(jid string) bool {
	if jid == "" {
		return false
	}
	return !strings.HasSuffix(jid, GroupSuffix) && !strings.HasSuffix(jid, BroadcastSuffix)
}

// IsGroupJID reports whether the address is a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, GroupSuffix)
}

// PhoneFromJID extracts the numeric portion of a JID. Device suffixes
// (":12" before the domain) are dropped.
func PhoneFromJID(jid string) string {
	number := jid
	if idx := strings.Index(number, "@"); idx >= 0 {
		number = number[:idx]
	}
	if idx := strings.Index(number, ":"); idx >= 0 {
		number = number[:idx]
	}
	var digits strings.Builder
	for _, r := range number {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}

// ValidateJID checks that an individual JID carries a plausible phone number.
func ValidateJID(jid string) error {
	if jid == "" {
		return errors.New(errors.ErrCodeInvalidInput, "JID cannot be empty")
	}

	phone := PhoneFromJID(jid)
	if len(phone) < minPhoneDigits {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("JID phone portion must be at least %d digits", minPhoneDigits))
	}
	if len(phone) > maxPhoneDigits {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("JID phone portion too long (max %d digits)", maxPhoneDigits))
	}

	return nil
}

// ValidateMessageID validates a network message id before it is used as a
// dedup key.
func ValidateMessageID(messageID string) error {
	if messageID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message ID cannot be empty")
	}

	if len(messageID) > maxMessageID {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message ID too long (max %d characters)", maxMessageID))
	}

	for _, char := range messageID {
		if char == '\x00' || char == '\n' || char == '\r' || char == '\t' {
			return errors.New(errors.ErrCodeInvalidInput, "message ID contains invalid characters")
		}
	}

	return nil
}

// ValidateEnvelope checks the required keys of a webhook envelope for message
// events. Missing keys make the delivery unprocessable (it is still
// acknowledged upstream).
func ValidateEnvelope(envelope *models.WebhookEnvelope) error {
	if envelope == nil {
		return errors.New(errors.ErrCodeMalformedEnvelope, "envelope is nil")
	}
	if envelope.Event == "" {
		return errors.New(errors.ErrCodeMalformedEnvelope, "missing event type")
	}
	if envelope.Instance == "" {
		return errors.New(errors.ErrCodeMalformedEnvelope, "missing instance name")
	}
	return nil
}

// ValidateMessageEvent checks the message-specific required fields.
func ValidateMessageEvent(data *models.EventData) error {
	if data == nil {
		return errors.New(errors.ErrCodeMalformedEnvelope, "missing event data")
	}
	if data.Key.RemoteJID == "" {
		return errors.New(errors.ErrCodeMalformedEnvelope, "missing remoteJid")
	}
	if err := ValidateMessageID(data.Key.ID); err != nil {
		return err
	}
	return nil
}
