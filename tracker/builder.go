package tracker

import (
	"context"

	"go.uber.org/zap"

	"github.com/kjanecek/bitforge/metainfo"
	"github.com/kjanecek/bitforge/session"
)

const (
	defaultCommandBufferSize    = 32
	defaultPeerStreamBufferSize = 1024
)

// Builder configures and starts a Tracker worker for one torrent against
// one session.
type Builder struct {
	sess    *session.Session
	torrent *metainfo.Torrent
	logger  *zap.Logger

	saveTo               string
	commandBufferSize    int
	peerStreamBufferSize int
}

// NewBuilder starts a Builder for torrent, registering its worker's peer
// stream with sess once Begin is called.
func NewBuilder(sess *session.Session, torrent *metainfo.Torrent, logger *zap.Logger) *Builder {
	return &Builder{
		sess:                 sess,
		torrent:              torrent,
		logger:               logger,
		commandBufferSize:    defaultCommandBufferSize,
		peerStreamBufferSize: defaultPeerStreamBufferSize,
	}
}

// SaveTo records the directory for downloaded data. The value is kept on
// the Builder only: Begin does not pass it to the worker, and nothing in
// this package writes downloaded data.
func (b *Builder) SaveTo(dir string) *Builder {
	b.saveTo = dir
	return b
}

// WithCommandBufferSize overrides the worker's command channel capacity.
func (b *Builder) WithCommandBufferSize(n int) *Builder {
	b.commandBufferSize = n
	return b
}

// WithPeerStreamBufferSize overrides the worker's peer-connection channel
// capacity.
func (b *Builder) WithPeerStreamBufferSize(n int) *Builder {
	b.peerStreamBufferSize = n
	return b
}

// Begin registers the worker's peer stream with the session and starts
// its announce loop in a new goroutine, returning a handle to it.
func (b *Builder) Begin(ctx context.Context) (*Tracker, error) {
	infoHash := b.torrent.InfoHash
	if infoHash == ([20]byte{}) {
		return nil, newError(KindInvalidTorrent, "torrent has no infohash")
	}

	commands := make(chan Command, b.commandBufferSize)
	peerStream := make(chan *session.PeerConn, b.peerStreamBufferSize)
	watch := newStatusWatch(Status{})

	if err := b.sess.RegisterWorker(infoHash, peerStream); err != nil {
		return nil, wrapError(KindRegisterWorker, err)
	}

	w, err := newWorker(b.sess, b.torrent, watch, commands, peerStream, b.logger)
	if err != nil {
		b.sess.UnregisterWorker(infoHash)
		return nil, err
	}

	go w.run(ctx)

	return &Tracker{watch: watch, commands: commands}, nil
}
