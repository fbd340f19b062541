package events

import "sync"

// NoopChannel is a Channel that never delivers events. Used when no push
// endpoint is configured; the engine then relies solely on the fallback poll.
type NoopChannel struct{}

var _ Channel = (*NoopChannel)(nil)

// Join returns a stream that stays silent until the cancel function closes
// it, so consumers ranging over it exit on leave like they do for NATS.
func (NoopChannel) Join(identity string) (<-chan Event, func(), error) {
	ch := make(chan Event)
	var once sync.Once
	cancel := func() {
		once.Do(func() { close(ch) })
	}
	return ch, cancel, nil
}

func (NoopChannel) Close() error { return nil }
