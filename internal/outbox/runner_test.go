package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/NordCoder/Tokengate/internal/domain/outbox"
	"github.com/NordCoder/Tokengate/internal/domain/session"
	"github.com/NordCoder/Tokengate/internal/obs/retry"
	"github.com/NordCoder/Tokengate/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []session.Event
	fail   error
}

func (p *recordingPublisher) Publish(_ context.Context, ev session.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, ev)
	return nil
}

func enqueue(t *testing.T, repo domain.Repository, key string, ev session.Event) {
	t.Helper()
	kind, data, err := EncodeSessionEvent(ev)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(context.Background(), key, kind, data))
}

func TestRunner_TickPublishesAndMarks(t *testing.T) {
	repo := memory.NewOutboxRepo(memory.NewStore())
	pub := &recordingPublisher{}
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	enqueue(t, repo, "k1", session.Event{Type: session.EventLogin, UserID: 1, DeviceID: "d1", At: at})
	enqueue(t, repo, "k2", session.Event{Type: session.EventLogout, UserID: 1, At: at})

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(pub, retry.Policy{Attempts: 1}), Config{})
	r.tick(context.Background())

	require.Len(t, pub.events, 2)
	assert.Equal(t, session.EventLogin, pub.events[0].Type)
	assert.Equal(t, session.EventLogout, pub.events[1].Type)
	assert.Equal(t, 0, repo.Pending())
}

func TestRunner_FailedPublishStaysPending(t *testing.T) {
	repo := memory.NewOutboxRepo(memory.NewStore())
	pub := &recordingPublisher{fail: errors.New("broker down")}

	enqueue(t, repo, "k1", session.Event{Type: session.EventLogin, UserID: 1})

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(pub, retry.Policy{Attempts: 2}), Config{})
	r.tick(context.Background())

	assert.Equal(t, 1, repo.Pending())
}

func TestRunner_UnknownKindIsSkipped(t *testing.T) {
	repo := memory.NewOutboxRepo(memory.NewStore())
	require.NoError(t, repo.Enqueue(context.Background(), "k1", domain.Kind(99), []byte(`{}`)))

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(&recordingPublisher{}, retry.Policy{}), Config{})
	r.tick(context.Background())

	assert.Equal(t, 1, repo.Pending())
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	repo := memory.NewOutboxRepo(memory.NewStore())
	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(&recordingPublisher{}, retry.Policy{}),
		Config{Workers: 2, WaitTime: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestEncodeSessionEvent_UnknownType(t *testing.T) {
	_, _, err := EncodeSessionEvent(session.Event{Type: "session.other"})
	assert.Error(t, err)
}
