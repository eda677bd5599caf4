// Package hermod implements the outbound publisher for the Hermod GRIP push
// proxy. Messages are two-frame ZeroMQ publishes: the channel name, then the
// ASCII character 'J' followed by a JSON item describing the http-stream
// payload for that channel.
package hermod

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-zeromq/zmq4"

	"github.com/theNullP0inter/odinmcp/internal/port/outbound"
)

// streamFormat is the http-stream section of a GRIP item. Exactly one of
// Content or Action is set: content appends to the held stream, action
// "close" ends it.
type streamFormat struct {
	Content string `json:"content,omitempty"`
	Action  string `json:"action,omitempty"`
}

// gripItem is the JSON object published after the 'J' marker.
type gripItem struct {
	Channel string                  `json:"channel"`
	Formats map[string]streamFormat `json:"formats"`
}

// encodeItem renders the second ZeroMQ frame for a channel and format.
func encodeItem(channel string, format streamFormat) ([]byte, error) {
	item := gripItem{
		Channel: channel,
		Formats: map[string]streamFormat{"http-stream": format},
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshaling grip item: %w", err)
	}
	return append([]byte("J"), payload...), nil
}

// Publisher pushes GRIP items to the configured proxy endpoints over a
// single process-wide PUB socket. The socket is opened on first use and
// reused for every send; Close releases it.
type Publisher struct {
	urls   []string
	logger *slog.Logger

	mu   sync.Mutex
	sock zmq4.Socket
}

// NewPublisher creates a publisher for the given ZeroMQ publish endpoints.
func NewPublisher(urls []string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{urls: urls, logger: logger}
}

// socket returns the shared PUB socket, dialing all endpoints on first use.
// Callers must hold p.mu.
func (p *Publisher) socket(ctx context.Context) (zmq4.Socket, error) {
	if p.sock != nil {
		return p.sock, nil
	}
	sock := zmq4.NewPub(ctx)
	for _, url := range p.urls {
		if err := sock.Dial(url); err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("dialing hermod endpoint %s: %w", url, err)
		}
	}
	p.sock = sock
	return sock, nil
}

// send publishes the two-frame message for a channel.
func (p *Publisher) send(ctx context.Context, channel string, format streamFormat) error {
	item, err := encodeItem(channel, format)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sock, err := p.socket(ctx)
	if err != nil {
		return err
	}
	msg := zmq4.NewMsgFrom([]byte(channel), item)
	if err := sock.Send(msg); err != nil {
		// Drop the socket so the next publish reconnects.
		_ = sock.Close()
		p.sock = nil
		return fmt.Errorf("publishing to channel: %w", err)
	}
	return nil
}

// Publish pushes one preformatted SSE frame to the channel.
func (p *Publisher) Publish(ctx context.Context, channel string, content []byte) error {
	return p.send(ctx, channel, streamFormat{Content: string(content)})
}

// CloseChannel instructs the proxy to drop the held connection.
func (p *Publisher) CloseChannel(ctx context.Context, channel string) error {
	return p.send(ctx, channel, streamFormat{Action: "close"})
}

// Close releases the underlying socket.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sock == nil {
		return nil
	}
	err := p.sock.Close()
	p.sock = nil
	return err
}

// Compile-time check that Publisher implements the outbound port.
var _ outbound.Publisher = (*Publisher)(nil)
