package client

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ResetTopic is sent by the server when a resumed stream has lost events.
const ResetTopic = "reset"

// StreamEvent is one server-sent event from /v1/events/stream.
type StreamEvent struct {
	ID    string
	Topic string
	Data  []byte
}

// StreamOptions narrows an event stream. Zero values select everything.
type StreamOptions struct {
	Topics      []string // NATS-style patterns, e.g. "switchboard.release.*"
	Switch      string
	LastEventID string // resume after this event
}

func (o StreamOptions) query() string {
	q := url.Values{}
	if len(o.Topics) > 0 {
		q.Set("topics", strings.Join(o.Topics, ","))
	}
	if o.Switch != "" {
		q.Set("switch", o.Switch)
	}
	if o.LastEventID != "" {
		q.Set("last_event_id", o.LastEventID)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// StreamEvents opens the server's event stream. The returned channel is
// closed when ctx is done or the server ends the stream.
func (c *HTTPClient) StreamEvents(ctx context.Context, opts StreamOptions) (<-chan StreamEvent, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/events/stream"+opts.query(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("opening event stream: unexpected content type %q", ct)
	}

	ch := make(chan StreamEvent, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		readEvents(ctx, resp, ch)
	}()
	return ch, nil
}

// readEvents parses the text/event-stream body. Comments and retry hints are
// skipped; an event is emitted at each blank line.
func readEvents(ctx context.Context, resp *http.Response, ch chan<- StreamEvent) {
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	var ev StreamEvent
	var data []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if ev.Topic != "" || len(data) > 0 {
				ev.Data = []byte(strings.Join(data, "\n"))
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
			ev, data = StreamEvent{}, nil
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.ID = value
		case "event":
			ev.Topic = value
		case "data":
			data = append(data, value)
		}
	}
}
