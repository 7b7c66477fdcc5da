package evolution

import "context"

// GatewayClient is the surface of the Evolution API the service depends on.
type GatewayClient interface {
	// FetchProfilePictureURL returns the avatar URL for a JID, or an empty
	// string when the contact has no fetchable avatar.
	FetchProfilePictureURL(ctx context.Context, instance, jid string) (string, error)

	// FetchInstances lists the instances configured on the gateway.
	FetchInstances(ctx context.Context) ([]Instance, error)
}
