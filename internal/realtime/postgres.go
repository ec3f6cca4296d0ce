package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	postgresSubscriberBuffer = 64
	listenRetryDelay         = time.Second
	listenRetryMaxDelay      = 30 * time.Second
)

// ErrFeedClosed is returned by Subscribe after Close.
var ErrFeedClosed = errors.New("realtime feed closed")

// ListenConn is the dedicated connection the feed waits on. *pgx.Conn
// satisfies it.
type ListenConn interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// DialFunc opens a ListenConn that is already listening on
// MessageInsertChannel.
type DialFunc func(ctx context.Context) (ListenConn, error)

// DialPostgres opens a connection outside the shared pool and issues LISTEN
// on it.
func DialPostgres(dbURL string) DialFunc {
	return func(ctx context.Context) (ListenConn, error) {
		conn, err := pgx.Connect(ctx, dbURL)
		if err != nil {
			return nil, fmt.Errorf("connect listener: %w", err)
		}
		if _, err := conn.Exec(ctx, "LISTEN "+MessageInsertChannel); err != nil {
			_ = conn.Close(context.Background())
			return nil, fmt.Errorf("listen %s: %w", MessageInsertChannel, err)
		}
		return conn, nil
	}
}

type postgresSubscriber struct {
	sessionID uuid.UUID
	events    chan InsertEvent
}

// PostgresFeed runs a single LISTEN connection and fans notifications out to
// subscribers by session id. The listener starts on the first Subscribe and
// reconnects when the connection drops. Subscribers registered at the time
// of a drop, or too slow to keep up, have their channel closed.
type PostgresFeed struct {
	dial DialFunc
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	start  sync.Once
	done   chan struct{}

	mu          sync.Mutex
	listening   bool
	ready       chan struct{}
	subscribers map[uuid.UUID]map[*postgresSubscriber]struct{}
}

func NewPostgresFeed(dial DialFunc, log *zap.Logger) *PostgresFeed {
	ctx, cancel := context.WithCancel(context.Background())
	return &PostgresFeed{
		dial:        dial,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		ready:       make(chan struct{}),
		subscribers: make(map[uuid.UUID]map[*postgresSubscriber]struct{}),
	}
}

// Subscribe waits until the listener is up, bounded by ctx, and registers
// the caller. The channel closes when ctx is done.
func (f *PostgresFeed) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan InsertEvent, error) {
	f.start.Do(func() { go f.run() })

	sub := &postgresSubscriber{
		sessionID: sessionID,
		events:    make(chan InsertEvent, postgresSubscriberBuffer),
	}
	for {
		f.mu.Lock()
		if f.ctx.Err() != nil {
			f.mu.Unlock()
			return nil, ErrFeedClosed
		}
		if f.listening {
			if f.subscribers[sessionID] == nil {
				f.subscribers[sessionID] = make(map[*postgresSubscriber]struct{})
			}
			f.subscribers[sessionID][sub] = struct{}{}
			f.mu.Unlock()
			break
		}
		ready := f.ready
		f.mu.Unlock()

		select {
		case <-ready:
		case <-f.ctx.Done():
			return nil, ErrFeedClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-f.ctx.Done():
		}
		f.mu.Lock()
		f.removeLocked(sub)
		f.mu.Unlock()
	}()

	return sub.events, nil
}

// Close stops the listener and closes every subscriber channel.
func (f *PostgresFeed) Close() error {
	f.cancel()
	// A feed that never started has no listener to wait for.
	f.start.Do(func() { close(f.done) })
	<-f.done

	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropAllLocked()
	return nil
}

func (f *PostgresFeed) run() {
	defer close(f.done)

	for f.ctx.Err() == nil {
		var conn ListenConn
		err := retry.Do(func() error {
			var dialErr error
			conn, dialErr = f.dial(f.ctx)
			return dialErr
		},
			retry.Context(f.ctx),
			retry.Attempts(0),
			retry.Delay(listenRetryDelay),
			retry.MaxDelay(listenRetryMaxDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				f.log.Warn("realtime listener connect failed", zap.Uint("attempt", n+1), zap.Error(err))
			}),
		)
		if err != nil {
			return
		}

		f.setListening(true)
		err = f.listen(conn)
		f.setListening(false)
		_ = conn.Close(context.Background())

		if f.ctx.Err() != nil {
			return
		}
		f.log.Warn("realtime listener dropped, reconnecting", zap.Error(err))
	}
}

func (f *PostgresFeed) listen(conn ListenConn) error {
	for {
		notification, err := conn.WaitForNotification(f.ctx)
		if err != nil {
			return err
		}

		event, err := DecodeEvent([]byte(notification.Payload))
		if err != nil {
			f.log.Warn("realtime dropped malformed notification", zap.Error(err))
			continue
		}
		f.dispatch(event)
	}
}

func (f *PostgresFeed) dispatch(event InsertEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subscribers[event.SessionID] {
		select {
		case sub.events <- event:
		default:
			f.log.Warn("realtime subscriber too slow, closing",
				zap.String("session_id", event.SessionID.String()),
			)
			f.removeLocked(sub)
		}
	}
}

// setListening flips the listener state. Going down closes every current
// subscriber, since notifications sent while disconnected are lost.
func (f *PostgresFeed) setListening(up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if up {
		f.listening = true
		close(f.ready)
		return
	}
	f.listening = false
	f.ready = make(chan struct{})
	f.dropAllLocked()
}

func (f *PostgresFeed) removeLocked(sub *postgresSubscriber) {
	subs := f.subscribers[sub.sessionID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(f.subscribers, sub.sessionID)
	}
	close(sub.events)
}

func (f *PostgresFeed) dropAllLocked() {
	for _, subs := range f.subscribers {
		for sub := range subs {
			f.removeLocked(sub)
		}
	}
}
