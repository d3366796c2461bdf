package locate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	// natsSubjectPrefix is the subject tree position fixes are published on.
	// Each device publishes on locate.fix.<deviceID> and answers one-shot
	// requests on locate.query.<deviceID>.
	natsFixSubjectPrefix   = "locate.fix."
	natsQuerySubjectPrefix = "locate.query."

	defaultNATSAcquireTimeout = 10 * time.Second

	// natsWatchBuffer bounds the fan-in channel. Fixes arriving faster than
	// the consumer drains them are dropped, never blocked on: a newer fix
	// always supersedes an older one anyway.
	natsWatchBuffer = 16
)

// NATSSource delivers position fixes over a NATS connection. It is the
// continuous backend: Watch subscribes to the device's fix subject, Acquire
// does a request/reply against the device's query subject.
type NATSSource struct {
	conn     *nats.Conn
	deviceID string
	ownsConn bool
	sub      *nats.Subscription
}

// NewNATSSource connects to the given NATS URL and binds the source to the
// device's subjects.
func NewNATSSource(url, deviceID string) (*NATSSource, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("could not connect to NATS at %s: %w", url, err)
	}
	return &NATSSource{conn: conn, deviceID: deviceID, ownsConn: true}, nil
}

// NewNATSSourceWithConn binds the source to an existing connection. The
// caller keeps ownership of the connection.
func NewNATSSourceWithConn(conn *nats.Conn, deviceID string) *NATSSource {
	return &NATSSource{conn: conn, deviceID: deviceID}
}

// Acquire requests a single fresh fix via request/reply.
func (s *NATSSource) Acquire(ctx context.Context, opts AcquireOptions) (*Position, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultNATSAcquireTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := json.Marshal(map[string]interface{}{
		"maximumAgeMs": opts.MaximumAge.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	msg, err := s.conn.RequestWithContext(ctx, natsQuerySubjectPrefix+s.deviceID, req)
	if err != nil {
		if err == context.DeadlineExceeded || err == nats.ErrTimeout {
			return nil, ErrAcquisitionTimeout
		}
		return nil, err
	}
	return decodeFix(msg.Data)
}

// Watch subscribes to the device's fix subject and streams decoded fixes
// until ctx is cancelled or the source is closed.
func (s *NATSSource) Watch(ctx context.Context) (<-chan *Position, error) {
	msgs := make(chan *nats.Msg, natsWatchBuffer)
	sub, err := s.conn.ChanSubscribe(natsFixSubjectPrefix+s.deviceID, msgs)
	if err != nil {
		return nil, fmt.Errorf("could not subscribe to fix subject: %w", err)
	}
	s.sub = sub

	out := make(chan *Position, natsWatchBuffer)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				fix, err := decodeFix(msg.Data)
				if err != nil {
					log.Warn().Err(err).Msg("dropping malformed position fix")
					continue
				}
				select {
				case out <- fix:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close drains the subscription and, when the source owns it, the connection.
func (s *NATSSource) Close() error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			return err
		}
		s.sub = nil
	}
	if s.ownsConn {
		s.conn.Close()
	}
	return nil
}

func decodeFix(data []byte) (*Position, error) {
	var fix Position
	if err := json.Unmarshal(data, &fix); err != nil {
		return nil, fmt.Errorf("invalid fix payload: %w", err)
	}
	if fix.CapturedAt.IsZero() {
		return nil, fmt.Errorf("fix payload is missing capturedAt")
	}
	return &fix, nil
}
