package mqtt

// Handler receives the payload of a message published on topic.
type Handler func(topic string, payload []byte)

// Client is the MQTT transport the vehicle adapters and the simulator use.
// Subscriptions survive reconnects.
type Client interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, h Handler) error
	Unsubscribe(topic string) error
}
