package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kjanecek/bitforge/metainfo"
	"github.com/kjanecek/bitforge/session"
)

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.Bind(context.Background(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestBuilderBeginRegistersAndStatusReflectsFirstAnnounce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("d8:intervali900e5:peers0:e"))
	}))
	t.Cleanup(srv.Close)

	sess := newTestSession(t)
	torrent := &metainfo.Torrent{
		Announce: srv.URL,
		Info:     metainfo.Info{Length: 100},
		InfoHash: [20]byte{9, 9, 9},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tr, err := NewBuilder(sess, torrent, zap.NewNop()).Begin(ctx)
	require.NoError(t, err)

	status, err := tr.StatusAsync(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(0), status.Peers)
	require.False(t, status.IsFinished)
}

func TestBuilderBeginRejectsTorrentWithoutInfoHash(t *testing.T) {
	sess := newTestSession(t)
	torrent := &metainfo.Torrent{Announce: "http://example.invalid/announce"}

	_, err := NewBuilder(sess, torrent, zap.NewNop()).Begin(context.Background())
	requireKind(t, err, KindInvalidTorrent)
}

func TestTrackerSendPauseThenResumeAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("d8:intervali900e5:peers0:e"))
	}))
	t.Cleanup(srv.Close)

	sess := newTestSession(t)
	torrent := &metainfo.Torrent{
		Announce: srv.URL,
		Info:     metainfo.Info{Length: 100},
		InfoHash: [20]byte{1, 2, 3},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tr, err := NewBuilder(sess, torrent, zap.NewNop()).Begin(ctx)
	require.NoError(t, err)

	sendCtx, sendCancel := context.WithTimeout(ctx, 2*time.Second)
	defer sendCancel()
	require.NoError(t, tr.Send(sendCtx, CommandPause))
	require.NoError(t, tr.Send(sendCtx, CommandResume))
}

func TestTrackerAbortStopsWorkerAndUnregisters(t *testing.T) {
	var mu sync.Mutex
	var events []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		events = append(events, r.URL.Query().Get("event"))
		mu.Unlock()
		w.Write([]byte("d8:intervali900e5:peers0:e"))
	}))
	t.Cleanup(srv.Close)

	sess := newTestSession(t)
	torrent := &metainfo.Torrent{
		Announce: srv.URL,
		Info:     metainfo.Info{Length: 100},
		InfoHash: [20]byte{4, 5, 6},
	}

	ctx := context.Background()
	tr, err := NewBuilder(sess, torrent, zap.NewNop()).Begin(ctx)
	require.NoError(t, err)

	sendCtx, sendCancel := context.WithTimeout(ctx, 2*time.Second)
	defer sendCancel()
	require.NoError(t, tr.Send(sendCtx, CommandAbort))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 1 && events[len(events)-1] == "stopped"
	}, 2*time.Second, 20*time.Millisecond, "expected a final event=stopped announce on abort")

	// Once the worker has deregistered, a second Begin for the same
	// infohash must succeed rather than hitting a duplicate-route error.
	require.Eventually(t, func() bool {
		_, err := NewBuilder(sess, torrent, zap.NewNop()).Begin(ctx)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}
