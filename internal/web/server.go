// Package web serves a read-only view of the running bots: their mode state
// and a live stream of audit records.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/rebalancer/internal/domain"
	"github.com/vadiminshakov/rebalancer/internal/storage/audit"
)

const (
	auditPollInterval = 2 * time.Second
	heartbeatInterval = 30 * time.Second
)

// Bot is the view of one running bot.
type Bot interface {
	Mode() domain.ModeState
	AuditAfter(index uint64) ([]audit.IndexedRecord, error)
}

// Server exposes HTTP endpoints serving the HTML UI and an SSE stream.
type Server struct {
	Addr string
	l    *zap.Logger
	bots map[string]Bot

	pollInterval time.Duration
}

// NewServer creates a new web server instance.
func NewServer(addr string, l *zap.Logger, bots map[string]Bot) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Addr: addr, l: l, bots: bots, pollInterval: auditPollInterval}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/bots", s.handleBots)
	mux.HandleFunc("/mode", s.handleMode)
	mux.HandleFunc("/audit/stream", s.handleAuditStream)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("web server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) bot(w http.ResponseWriter, r *http.Request) (Bot, bool) {
	name := r.URL.Query().Get("bot")
	bot, ok := s.bots[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown bot %q", name), http.StatusNotFound)
		return nil, false
	}
	return bot, true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleBots(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.bots))
	for name := range s.bots {
		names = append(names, name)
	}
	sort.Strings(names)

	s.writeJSON(w, names)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.bot(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, bot.Mode())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.bot(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendRecords := func() error {
		records, err := bot.AuditAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Record)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: audit\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendRecords(); err != nil {
		http.Error(w, "failed to load audit records", http.StatusInternalServerError)
		s.l.Error("audit stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendRecords(); err != nil {
				s.l.Warn("audit stream poll", zap.Error(err))
			}
		}
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>rebalancer</title>
<style>
body { font-family: ui-monospace, monospace; background: #111; color: #ddd; margin: 2rem; }
select, pre { background: #1b1b1b; color: #ddd; border: 1px solid #333; padding: .5rem; }
table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
td, th { border-bottom: 1px solid #333; padding: .3rem .6rem; text-align: left; }
.ok { color: #73F59F; } .fail { color: #F25D94; }
</style>
</head>
<body>
<h1>rebalancer</h1>
<select id="bot"></select>
<pre id="mode"></pre>
<table>
<thead><tr><th>time</th><th>stage</th><th>kind</th><th>symbols</th><th>amount</th><th>reason</th></tr></thead>
<tbody id="records"></tbody>
</table>
<script>
const botSelect = document.getElementById('bot');
const modeEl = document.getElementById('mode');
const rows = document.getElementById('records');
let source = null;

function connect(bot) {
  if (source) source.close();
  rows.innerHTML = '';
  fetch('/mode?bot=' + encodeURIComponent(bot)).then(r => r.json()).then(m => {
    modeEl.textContent = JSON.stringify(m, null, 2);
  });
  source = new EventSource('/audit/stream?bot=' + encodeURIComponent(bot));
  source.addEventListener('audit', (e) => {
    const rec = JSON.parse(e.data);
    const tr = document.createElement('tr');
    tr.className = rec.success ? 'ok' : 'fail';
    for (const v of [rec.ts, rec.stage, rec.kind, (rec.symbols || []).join(','), rec.amount, rec.reason]) {
      const td = document.createElement('td');
      td.textContent = v;
      tr.appendChild(td);
    }
    rows.prepend(tr);
  });
}

fetch('/bots').then(r => r.json()).then(names => {
  for (const n of names) {
    const o = document.createElement('option');
    o.value = n; o.textContent = n;
    botSelect.appendChild(o);
  }
  if (names.length) connect(names[0]);
});
botSelect.addEventListener('change', () => connect(botSelect.value));
</script>
</body>
</html>
`
