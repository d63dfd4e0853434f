package call

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Stream is a local or remote media stream.
type Stream interface {
	ID() string
}

// MediaSource acquires the local capture stream.
type MediaSource interface {
	Acquire(ctx context.Context) (Stream, error)
}

// PeerConfig configures one peer connection.
type PeerConfig struct {
	// Initiator peers produce the offer; the others answer a remote offer.
	Initiator bool

	// Stream is sent to the remote side. Nil means receive only.
	Stream Stream

	// OnSignal receives each local signal to relay to the remote peer.
	OnSignal func(signal json.RawMessage)

	// OnStream receives the remote media stream.
	OnStream func(Stream)
}

// Peer is a single peer-to-peer media connection.
type Peer interface {
	// Signal applies a signal received from the remote peer.
	Signal(remote json.RawMessage) error

	// Destroy releases the connection. It is safe to call more than once.
	Destroy() error
}

// PeerFactory creates a peer for one call.
type PeerFactory func(cfg PeerConfig) (Peer, error)

// Ticker drives the call duration counter.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}
