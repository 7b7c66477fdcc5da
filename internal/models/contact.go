package models

import "time"

// Contact represents a locally known identity mapped to a messaging-network
// JID. The mapping is created lazily on first contact and is never re-pointed
// or deleted by the ingestion path.
type Contact struct {
	ID           int64     `json:"id"`
	JID          string    `json:"jid"`   // e.g. "591700000000@s.whatsapp.net"
	Phone        string    `json:"phone"` // numeric portion of the JID
	Login        string    `json:"login"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	LifecycleTag string    `json:"lifecycleTag"`
	AvatarID     *int64    `json:"avatarId,omitempty"`
	InstanceName string    `json:"instanceName"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasAvatar reports whether an avatar attachment has already been recorded.
func (c *Contact) HasAvatar() bool {
	return c.AvatarID != nil && *c.AvatarID > 0
}
