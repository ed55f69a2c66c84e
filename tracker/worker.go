package tracker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kjanecek/bitforge/bencode"
	"github.com/kjanecek/bitforge/metainfo"
	"github.com/kjanecek/bitforge/session"
)

// WorkerState drives the worker's announce loop.
type WorkerState int

const (
	WorkerRunning WorkerState = iota
	WorkerPaused
	WorkerAborted
)

// TrackerState tracks which lifecycle event, if any, the next announce
// should carry.
type TrackerState int

const (
	TrackerEmpty TrackerState = iota
	TrackerStarted
	TrackerCompleted
	TrackerStopped
)

func (s TrackerState) event() string {
	switch s {
	case TrackerStarted:
		return "started"
	case TrackerCompleted:
		return "completed"
	case TrackerStopped:
		return "stopped"
	default:
		return ""
	}
}

const (
	pausedSleep            = 500 * time.Millisecond
	maxConsecutiveFailures = 8
	// speedSmoothing is the EMA weight given to each new instantaneous
	// download-speed sample; lower values smooth harder.
	speedSmoothing = 0.3
)

// worker drives one torrent's announce lifecycle: it owns the tracker
// HTTP conversation, the command inbox, and the peer-connection stream
// handed to it by the session it is registered with.
type worker struct {
	sess    *session.Session
	torrent *metainfo.Torrent
	baseURL string

	watch      *statusWatch
	commands   <-chan Command
	peerStream <-chan *session.PeerConn
	logger     *zap.Logger
	http       *http.Client

	state        WorkerState
	trackerState TrackerState

	uploaded, downloaded, left int64

	lastDownloaded int64
	lastTickAt     time.Time
	downloadSpeed  uint64
	speedEMA       float64

	peersCount, seedsCount uint32

	consecutiveFailures int
	backoff             *backoff.ExponentialBackOff

	interval time.Duration

	conns []*session.PeerConn
}

const defaultAnnounceInterval = 30 * time.Second

func newWorker(
	sess *session.Session,
	torrent *metainfo.Torrent,
	watch *statusWatch,
	commands <-chan Command,
	peerStream <-chan *session.PeerConn,
	logger *zap.Logger,
) (*worker, error) {
	var total int64
	if torrent.Info.Multi() {
		for _, f := range torrent.Info.Files {
			total += f.Length
		}
	} else {
		total = torrent.Info.Length
	}

	addr, ok := sess.ListenAddr().(*net.TCPAddr)
	if !ok {
		return nil, newError(KindInvalidTorrent, "session listen address is not a TCP address")
	}

	baseURL, err := buildBaseURL(torrent, sess.PeerID(), addr.Port)
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 60 * time.Second
	bo.MaxElapsedTime = 0

	return &worker{
		sess:       sess,
		torrent:    torrent,
		baseURL:    baseURL,
		watch:      watch,
		commands:   commands,
		peerStream: peerStream,
		logger:     logger,
		http:       sess.HTTPClient(),
		left:       total,
		backoff:    bo,
		interval:   defaultAnnounceInterval,
	}, nil
}

// buildBaseURL assembles the announce URL's fixed portion: everything but
// uploaded/downloaded/left/event, which change every tick.
func buildBaseURL(torrent *metainfo.Torrent, peerID [20]byte, port int) (string, error) {
	if torrent.Announce == "" {
		return "", newError(KindInvalidTorrent, "torrent has no announce URL")
	}
	sep := "?"
	for _, c := range torrent.Announce {
		if c == '?' {
			sep = "&"
			break
		}
	}
	return fmt.Sprintf("%s%sinfo_hash=%s&peer_id=%s&port=%d",
		torrent.Announce, sep, percentEncode(torrent.InfoHash[:]), percentEncode(peerID[:]), port), nil
}

// percentEncode escapes every byte as %XX, matching BitTorrent trackers'
// expectation of a raw per-byte encoding rather than selective
// URL-escaping of "unsafe" characters only.
func percentEncode(b []byte) string {
	const hex = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*3)
	for _, c := range b {
		out = append(out, '%', hex[c>>4], hex[c&0xf])
	}
	return string(out)
}

// run is the worker's main loop: drain pending commands and peer
// connections, then act on the current state, until aborted.
func (w *worker) run(ctx context.Context) {
	defer w.deregister()

	for {
		w.drainCommands()
		w.drainPeerStream()

		switch w.state {
		case WorkerAborted:
			if w.trackerState != TrackerStopped {
				w.announceStop()
			}
			w.publish()
			return
		case WorkerPaused:
			w.publish()
			select {
			case <-time.After(pausedSleep):
			case <-ctx.Done():
				w.state = WorkerAborted
			}
		default:
			w.tick(ctx)
			w.publish()
			if w.state == WorkerRunning {
				select {
				case <-time.After(w.interval):
				case <-ctx.Done():
					w.state = WorkerAborted
				case cmd, ok := <-w.commands:
					if !ok {
						w.state = WorkerAborted
					} else {
						w.applyCommand(cmd)
					}
				}
			}
		}

		if ctx.Err() != nil {
			w.state = WorkerAborted
		}
	}
}

func (w *worker) drainCommands() {
	for {
		select {
		case cmd, ok := <-w.commands:
			if !ok {
				w.state = WorkerAborted
				return
			}
			w.applyCommand(cmd)
		default:
			return
		}
	}
}

func (w *worker) applyCommand(cmd Command) {
	switch cmd {
	case CommandPause:
		w.state = WorkerPaused
	case CommandResume:
		w.state = WorkerRunning
	case CommandAbort:
		w.state = WorkerAborted
	}
}

// announceStop issues a best-effort final announce with event=stopped so
// the tracker learns the client left. It uses its own short-lived context
// rather than the worker's run context, which may already be cancelled by
// the time abort is reached.
func (w *worker) announceStop() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u := fmt.Sprintf("%s&uploaded=%d&downloaded=%d&left=%d&event=%s",
		w.baseURL, w.uploaded, w.downloaded, w.left, TrackerStopped.event())
	if _, err := w.announce(stopCtx, u); err != nil {
		w.logger.Warn("stop announce failed", zap.Error(err))
	}
	w.trackerState = TrackerStopped
}

func (w *worker) drainPeerStream() {
	for {
		select {
		case pc, ok := <-w.peerStream:
			if !ok {
				return
			}
			w.conns = append(w.conns, pc)
		default:
			return
		}
	}
}

// tick performs one announce, updating trackerState and either
// consecutiveFailures/backoff or the download-speed/peer-count fields.
func (w *worker) tick(ctx context.Context) {
	event := ""
	if w.trackerState == TrackerEmpty {
		event = TrackerStarted.event()
	} else if w.left == 0 && w.trackerState != TrackerCompleted {
		event = TrackerCompleted.event()
	}

	u := fmt.Sprintf("%s&uploaded=%d&downloaded=%d&left=%d", w.baseURL, w.uploaded, w.downloaded, w.left)
	if event != "" {
		u += "&event=" + event
	}

	resp, err := w.announce(ctx, u)
	if err != nil {
		w.onFailure(ctx, err)
		return
	}

	switch event {
	case TrackerStarted.event():
		w.trackerState = TrackerStarted
	case TrackerCompleted.event():
		w.trackerState = TrackerCompleted
	}
	w.onSuccess(resp)
}

// announce issues the GET request and decodes the response body straight
// off the wire through the streaming decoder, rather than buffering the
// whole body first — trackers return small bodies, but this exercises the
// refillable decoder on a live network source instead of only in tests.
func (w *worker) announce(ctx context.Context, u string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, wrapError(KindAnnounce, err)
	}

	res, err := w.http.Do(req)
	if err != nil {
		return nil, wrapError(KindAnnounce, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, newError(KindAnnounce, "tracker returned status %s", res.Status)
	}

	v, err := bencode.NewStreamDecoder(res.Body).Decode()
	if err != nil {
		return nil, wrapError(KindMalformedResponse, err)
	}

	parsed, err := parseResponse(v)
	if err != nil {
		return nil, err
	}
	if parsed.Failure != "" {
		return nil, newError(KindTrackerFailure, "%s", parsed.Failure)
	}
	return parsed, nil
}

func (w *worker) onFailure(ctx context.Context, err error) {
	w.consecutiveFailures++
	w.logger.Warn("tracker announce failed",
		zap.Error(err), zap.Int("consecutive_failures", w.consecutiveFailures))

	if w.consecutiveFailures >= maxConsecutiveFailures {
		w.logger.Error("aborting worker after repeated announce failures",
			zap.Int("consecutive_failures", w.consecutiveFailures))
		w.state = WorkerAborted
		return
	}

	select {
	case <-time.After(w.backoff.NextBackOff()):
	case <-ctx.Done():
		w.state = WorkerAborted
	case cmd, ok := <-w.commands:
		if !ok {
			w.state = WorkerAborted
		} else {
			w.applyCommand(cmd)
		}
	}
}

func (w *worker) onSuccess(resp *Response) {
	w.consecutiveFailures = 0
	w.backoff.Reset()

	now := time.Now()
	if !w.lastTickAt.IsZero() {
		elapsed := now.Sub(w.lastTickAt).Seconds()
		if elapsed > 0 {
			instant := float64(w.downloaded-w.lastDownloaded) / elapsed
			w.speedEMA = speedSmoothing*instant + (1-speedSmoothing)*w.speedEMA
			w.downloadSpeed = uint64(w.speedEMA)
		}
	}
	w.lastTickAt = now
	w.lastDownloaded = w.downloaded

	w.peersCount = uint32(len(resp.Peers))
	if resp.Complete > 0 {
		w.seedsCount = uint32(resp.Complete)
	}
	if resp.Interval > 0 {
		w.interval = time.Duration(resp.Interval) * time.Second
	}
}

func (w *worker) progress() float64 {
	total := w.left + w.downloaded
	if total == 0 {
		return 1
	}
	return float64(w.downloaded) / float64(total)
}

func (w *worker) publish() {
	w.watch.set(Status{
		Progress:      w.progress(),
		DownloadSpeed: w.downloadSpeed,
		Peers:         w.peersCount,
		Seeds:         w.seedsCount,
		IsFinished:    w.left == 0,
	})
}

func (w *worker) deregister() {
	w.sess.UnregisterWorker(w.torrent.InfoHash)
}
