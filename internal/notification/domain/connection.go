package domain

import "time"

// Connection is a live-channel registration. It only lives as long as the
// channel does and is never written to the database.
type Connection struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	PersonID  string    `json:"personId"`
	ChannelID string    `json:"channelId"`
	JoinedAt  time.Time `json:"joinedAt"`
}
