// Package pubsub is the fan-out seam between the broadcast router and
// the delivery substrate. The router publishes through the Publisher
// interface; delivery is either the in-process hub alone or a Redis
// channel shared by every gateway instance.
package pubsub

import "context"

// Publisher delivers a payload to every current subscriber of a topic.
// Delivery is at-most-once and best-effort.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscribers is the local delivery surface, implemented by ws.Hub.
type Subscribers interface {
	Publish(topic string, payload []byte)
}

// HubPublisher publishes directly to the in-process hub. Used when the
// gateway runs as a single instance.
type HubPublisher struct {
	hub Subscribers
}

func NewHubPublisher(hub Subscribers) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.hub.Publish(topic, payload)
	return nil
}
