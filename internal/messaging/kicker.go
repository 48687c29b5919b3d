package messaging

import "context"

// Kicker publishes force-disconnect orders over NATS. It satisfies the
// moderation service's kick dependency without the service knowing about
// transport details.
type Kicker struct {
	client *NATSClient
}

// NewKicker wraps a NATS client as a kick publisher.
func NewKicker(client *NATSClient) *Kicker {
	return &Kicker{client: client}
}

// Kick broadcasts the connection ids to every server instance; the instance
// hosting each connection closes it.
func (k *Kicker) Kick(_ context.Context, connIDs []string) error {
	return k.client.PublishKick(KickEvent{ConnIDs: connIDs, Reason: "reported"})
}
