package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/joescharf/pmdash/internal/realtime"
)

// Subscribe opens the server's event stream for f. It returns once the
// server reports the subscription live, so changes committed afterwards are
// never missed. The stream ends when ctx is cancelled or Close is called.
func (c *Client) Subscribe(ctx context.Context, f realtime.Filter) (realtime.Subscription, error) {
	q := url.Values{}
	if f.Table != "" {
		q.Set("table", string(f.Table))
	}
	if f.ProjectID != "" {
		q.Set("project_id", f.ProjectID)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, withQuery(c.BaseURL+"/api/v1/events", q), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.Stream.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		defer cancel()
		body, _ := io.ReadAll(resp.Body)
		return nil, decodeError(resp.StatusCode, body)
	}

	sub := &streamSub{
		filter: f,
		ch:     make(chan realtime.Event, 1),
		cancel: cancel,
		body:   resp.Body,
		lines:  bufio.NewScanner(resp.Body),
	}
	if err := sub.awaitReady(); err != nil {
		sub.Close()
		return nil, err
	}
	go sub.run()
	return sub, nil
}

type streamSub struct {
	filter realtime.Filter
	ch     chan realtime.Event
	cancel context.CancelFunc
	body   io.ReadCloser
	lines  *bufio.Scanner
	once   sync.Once
}

func (s *streamSub) Events() <-chan realtime.Event { return s.ch }

func (s *streamSub) Close() {
	s.once.Do(func() {
		s.cancel()
		s.body.Close()
	})
}

func (s *streamSub) awaitReady() error {
	for s.lines.Scan() {
		if s.lines.Text() == "event: ready" {
			return nil
		}
	}
	if err := s.lines.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return fmt.Errorf("event stream closed before ready")
}

// run parses "event:"/"data:" frames. Pending events coalesce the same
// way the in-process hub does.
func (s *streamSub) run() {
	defer close(s.ch)
	defer s.Close()

	var event string
	for s.lines.Scan() {
		line := s.lines.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "change":
			var e realtime.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err != nil {
				slog.Debug("skip malformed change event", "error", err)
				continue
			}
			if !s.filter.Matches(e) && s.filter.Table != "" {
				continue
			}
			select {
			case s.ch <- e:
			default:
			}
		}
	}
}
