package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/joescharf/pmdash/internal/realtime"
	"github.com/joescharf/pmdash/internal/search"
)

// HeartbeatInterval is how often an idle event stream sends a comment line.
var HeartbeatInterval = 25 * time.Second

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	ix, err := search.Load(r.Context(), s.store)
	if err != nil {
		s.fail(w, err, "Search failed")
		return
	}
	results := ix.Search(r.URL.Query().Get("q"), queryInt(r, "limit", search.DefaultLimit))
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

// streamEvents relays change events as server-sent events. Each "table"
// parameter opens one stream; none subscribes to every table. A "ready"
// event is sent once all subscriptions are live.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "change stream is not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	q := r.URL.Query()
	tables := realtime.Tables
	if raw := q["table"]; len(raw) > 0 {
		tables = make([]realtime.Table, 0, len(raw))
		for _, name := range raw {
			t, err := realtime.ParseTable(name)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			tables = append(tables, t)
		}
	}
	projectID := q.Get("project_id")

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	events := make(chan realtime.Event)
	for _, t := range tables {
		sub, err := s.events.Subscribe(ctx, realtime.Filter{Table: t, ProjectID: projectID})
		if err != nil {
			s.fail(w, err, "Failed to subscribe")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sub.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case e, ok := <-sub.Events():
					if !ok {
						return
					}
					select {
					case events <- e:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	s.logger.Debug("event stream opened", "tables", len(tables), "project_id", projectID)
	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("event stream closed", "project_id", projectID)
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e := <-events:
			data, err := json.Marshal(e)
			if err != nil {
				s.logger.Error("encode change event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
