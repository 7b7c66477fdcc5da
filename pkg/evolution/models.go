package evolution

import "time"

// ClientConfig holds the settings for the Evolution API client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// ProfilePictureResponse is the gateway's answer to a profile-picture lookup.
// ProfilePictureURL is empty when the contact has no avatar or hides it.
type ProfilePictureResponse struct {
	WUID              string `json:"wuid,omitempty"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}

// Instance describes one gateway instance (channel) as returned by the
// instance listing endpoint.
type Instance struct {
	InstanceName string `json:"instanceName"`
	Status       string `json:"status"`
	Owner        string `json:"owner,omitempty"`
	ProfileName  string `json:"profileName,omitempty"`
}

type instanceEnvelope struct {
	Instance Instance `json:"instance"`
}

type apiError struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
