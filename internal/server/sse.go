package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// sseHistorySize is how many recent events are kept for Last-Event-ID
	// replay.
	sseHistorySize = 1000

	sseClientBuffer      = 64
	sseKeepaliveInterval = 15 * time.Second
	sseRetryMillis       = 3000

	// sseResetEvent tells a reconnecting client that events were lost and it
	// should reload the registry.
	sseResetEvent = "reset"
)

type sseEvent struct {
	ID     uint64
	Topic  string
	Switch string // empty for defect events
	Data   []byte
}

// sseFilter selects events for one client. Zero values match everything.
type sseFilter struct {
	topics []string // NATS-style patterns
	sw     string
}

func (f sseFilter) matches(evt *sseEvent) bool {
	if f.sw != "" && evt.Switch != f.sw {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	for _, p := range f.topics {
		if matchTopicPattern(p, evt.Topic) {
			return true
		}
	}
	return false
}

type sseClient struct {
	filter sseFilter
	ch     chan *sseEvent
}

// sseHub fans registry and defect events out to streaming HTTP clients and
// remembers the most recent ones for replay.
type sseHub struct {
	mu      sync.Mutex
	lastID  uint64
	history []*sseEvent
	clients map[*sseClient]struct{}
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

// broadcast assigns the next event ID and delivers the event to every
// matching client. Slow clients miss events rather than block the writer.
func (h *sseHub) broadcast(topic string, payload []byte) {
	var ref struct {
		Switch string `json:"switch"`
	}
	_ = json.Unmarshal(payload, &ref)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastID++
	evt := &sseEvent{ID: h.lastID, Topic: topic, Switch: ref.Switch, Data: payload}

	if len(h.history) == sseHistorySize {
		h.history = append(h.history[1:], evt)
	} else {
		h.history = append(h.history, evt)
	}

	for c := range h.clients {
		if !c.filter.matches(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
		}
	}
}

func (h *sseHub) subscribe(f sseFilter) *sseClient {
	c := &sseClient{filter: f, ch: make(chan *sseEvent, sseClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns the retained events after lastID, oldest first.
// complete is false when events after lastID have already been evicted, or
// when lastID was issued by an earlier server process.
func (h *sseHub) eventsSince(lastID uint64) (evts []*sseEvent, complete bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if lastID > h.lastID {
		return nil, false
	}
	if len(h.history) == 0 {
		return nil, true
	}
	for _, evt := range h.history {
		if evt.ID > lastID {
			evts = append(evts, evt)
		}
	}
	return evts, lastID+1 >= h.history[0].ID
}

// matchTopicPattern matches a dot-separated topic against a pattern where
// "*" matches one segment and a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	segs := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(segs)
		}
		if i >= len(segs) || (p != "*" && p != segs[i]) {
			return false
		}
	}
	return len(pat) == len(segs)
}

// parseSSEFilter reads ?topics=a,b and ?switch=name.
func parseSSEFilter(r *http.Request) sseFilter {
	q := r.URL.Query()
	f := sseFilter{sw: strings.TrimSpace(q.Get("switch"))}
	for _, t := range strings.Split(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.topics = append(f.topics, t)
		}
	}
	return f
}

// lastEventID reads the Last-Event-ID header, or the last_event_id query
// parameter for clients that cannot set headers.
func lastEventID(r *http.Request) (uint64, bool) {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("last_event_id")
	}
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(v, 10, 64)
	return id, err == nil
}

// handleEventStream handles GET /v1/events/stream.
func (s *SwitchboardServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	filter := parseSSEFilter(r)
	client := s.sseHub.subscribe(filter)
	defer s.sseHub.unsubscribe(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry:%d\n\n", sseRetryMillis)

	// Live events already sent during replay are skipped.
	var sent uint64
	if lastID, ok := lastEventID(r); ok {
		sent = lastID
		replay, complete := s.sseHub.eventsSince(lastID)
		if !complete {
			fmt.Fprintf(w, "event:%s\ndata:{}\n\n", sseResetEvent)
			sent = 0
		}
		for _, evt := range replay {
			if filter.matches(evt) {
				writeSSEEvent(w, evt)
			}
			sent = evt.ID
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			if evt.ID <= sent {
				continue
			}
			sent = evt.ID
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
