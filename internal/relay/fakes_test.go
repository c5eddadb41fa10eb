package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeTransport records every frame it is sent.
type fakeTransport struct {
	mu      sync.Mutex
	open    bool
	sendErr error
	onSend  func()
	frames  [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{open: true}
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.onSend != nil {
		f.onSend()
	}
	if !f.open {
		return domain.ErrTransportClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
}

func (f *fakeTransport) envelopes(t *testing.T) []domain.InboundEnvelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.InboundEnvelope, 0, len(f.frames))
	for _, frame := range f.frames {
		var env domain.InboundEnvelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// countingStore wraps a RetentionStore and counts sweeps; failures can be
// injected for the first calls.
type countingStore struct {
	domain.RetentionStore

	mu        sync.Mutex
	takes     int
	failFirst int
	panicOnce bool
}

func (s *countingStore) TakeExpired(ctx context.Context, now time.Time, lifetime time.Duration) ([]domain.Record, error) {
	s.mu.Lock()
	s.takes++
	call := s.takes
	shouldPanic := s.panicOnce && call == 1
	shouldFail := call <= s.failFirst
	s.mu.Unlock()

	if shouldPanic {
		panic("store exploded")
	}
	if shouldFail {
		return nil, errStoreUnavailable
	}
	return s.RetentionStore.TakeExpired(ctx, now, lifetime)
}

func (s *countingStore) takeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takes
}

// failingStore rejects every Put.
type failingStore struct {
	*MemoryStore
}

func (failingStore) Put(context.Context, domain.Record) error {
	return errStoreUnavailable
}

var errStoreUnavailable = errorString("store unavailable")

type errorString string

func (e errorString) Error() string { return string(e) }

func payload(content, iv, tag string) domain.Payload {
	quote := func(s string) json.RawMessage {
		b, _ := json.Marshal(s)
		return b
	}
	return domain.Payload{Content: quote(content), IV: quote(iv), AuthTag: quote(tag)}
}
