package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "591700000001" -> "********0001"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		if len(phone) <= 5 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// MaskJID masks a network address keeping the domain suffix visible
// Example: "591700000001@s.whatsapp.net" -> "********0001@s.whatsapp.net"
func MaskJID(jid string) string {
	if jid == "" {
		return ""
	}

	if idx := strings.Index(jid, "@"); idx >= 0 {
		userPart := jid[:idx]
		domainPart := jid[idx:]

		if len(userPart) <= 4 {
			return strings.Repeat("*", len(userPart)) + domainPart
		}
		return strings.Repeat("*", len(userPart)-4) + userPart[len(userPart)-4:] + domainPart
	}

	return MaskPhoneNumber(jid)
}

// MaskMessageID masks a network message id, keeping a short suffix for log
// correlation.
func MaskMessageID(messageID string) string {
	return maskString(messageID, 8)
}

// MaskContactName hides all but the first rune of a display name.
func MaskContactName(name string) string {
	if name == "" {
		return ""
	}
	runes := []rune(name)
	if len(runes) == 1 {
		return "*"
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-1)
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{})
	for k, v := range fields {
		switch k {
		case "phone", "phone_number":
			if s, ok := v.(string); ok {
				masked[k] = MaskPhoneNumber(s)
			} else {
				masked[k] = v
			}
		case "jid", "sender", "recipient", "participant", "remote_jid":
			if s, ok := v.(string); ok {
				masked[k] = MaskJID(s)
			} else {
				masked[k] = v
			}
		case "message_id", "messageId", "wa_message_id":
			if s, ok := v.(string); ok {
				masked[k] = MaskMessageID(s)
			} else {
				masked[k] = v
			}
		case "push_name", "display_name", "name":
			if s, ok := v.(string); ok {
				masked[k] = MaskContactName(s)
			} else {
				masked[k] = v
			}
		default:
			masked[k] = v
		}
	}

	return masked
}
