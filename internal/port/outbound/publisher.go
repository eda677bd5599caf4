package outbound

import "context"

// Publisher is the outbound port to the Hermod push proxy. Channel names
// are raw channel tokens; content is a preformatted SSE frame.
type Publisher interface {
	// Publish pushes one SSE frame to every subscriber of the channel.
	Publish(ctx context.Context, channel string, content []byte) error

	// CloseChannel instructs the proxy to drop the held connection for the
	// channel, ending the client's stream.
	CloseChannel(ctx context.Context, channel string) error
}
