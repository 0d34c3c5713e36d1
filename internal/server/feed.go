package server

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"osdprof/internal/models"
)

const feedWriteTimeout = 5 * time.Second

var feedUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// feedSample is the wire shape of one sample on the live feed.
type feedSample struct {
	Timestamp int64  `json:"timestamp"`
	Tag       string `json:"tag"`
	Payload   string `json:"payload"`
}

// Feed broadcasts every collected sample to connected websocket clients.
// Slow or broken clients are dropped, never allowed to stall collection.
type Feed struct {
	log *zap.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newFeed(log *zap.Logger) *Feed {
	return &Feed{log: log, conns: make(map[*websocket.Conn]struct{})}
}

// Put implements collector.Sink by fanning the sample out to all clients.
// Delivery is best effort and never returns an error: a lost viewer must not
// abort collection.
func (f *Feed) Put(sample models.Sample) error {
	payload := feedSample{
		Timestamp: sample.Timestamp,
		Tag:       sample.Tag,
		Payload:   string(sample.Payload),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			f.log.Debug("dropping feed client", zap.Error(err))
			_ = conn.Close()
			delete(f.conns, conn)
		}
	}
	return nil
}

func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.conns[conn] = struct{}{}
	f.mu.Unlock()

	// Reader loop: we ignore client messages but need the read pump to
	// notice a closed connection.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.mu.Lock()
				if _, ok := f.conns[conn]; ok {
					_ = conn.Close()
					delete(f.conns, conn)
				}
				f.mu.Unlock()
				return
			}
		}
	}()
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.conns {
		_ = conn.Close()
		delete(f.conns, conn)
	}
}
