/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

func serveHomePage(cfg *Config) httprouter.Handle {
	page := newPage("typebox", "Start a typing race")

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(page))
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}

// Simple HTML client for the typing race
const raceHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Typebox Typing Race</title>
<style>
  body { font-family: system-ui, -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; max-width: 48rem; }
  h1 { margin-bottom: 0.5rem; }
  #status { margin-bottom: 1rem; font-size: 0.9rem; }
  #paragraph { padding: 1rem; background: #f4f4f4; border-radius: 4px; min-height: 3rem; }
  #typed { width: 100%; min-height: 6rem; margin-top: 1rem; font-size: 1rem; }
  #players { margin-top: 1rem; padding: 0; list-style: none; }
  #players li { padding: 0.25rem 0; border-bottom: 1px solid #ddd; }
  #players li.host::after { content: " ★"; }
  button { margin: 0.5rem 0.5rem 0.5rem 0; }
  #qr { display: none; margin-top: 1rem; }
</style>
</head>
<body>
<h1>Typing Race</h1>
<div id="status">Connecting…</div>
<button id="start" disabled>Start race</button>
<button id="share">Share room</button>
<img id="qr" alt="Room QR code">
<div id="paragraph"></div>
<textarea id="typed" placeholder="The race has not started yet…" disabled></textarea>
<ul id="players"></ul>

<script>
(function() {
  const statusEl = document.getElementById('status');
  const startEl = document.getElementById('start');
  const shareEl = document.getElementById('share');
  const qrEl = document.getElementById('qr');
  const paragraphEl = document.getElementById('paragraph');
  const typedEl = document.getElementById('typed');
  const playersEl = document.getElementById('players');

  const room = location.pathname.replace(/\/$/, '').split('/').pop();
  const players = new Map();
  let hostId = '';
  let myId = '';
  let racing = false;
  let pending = null;

  const proto = (location.protocol === 'https:') ? 'wss://' : 'ws://';
  const wsPath = location.pathname.replace(/\/$/, '') + '/ws';
  const ws = new WebSocket(proto + location.host + wsPath);

  function render() {
    playersEl.innerHTML = '';
    players.forEach(function(p) {
      const li = document.createElement('li');
      li.textContent = p.name + ' — ' + p.score + ' words, ' + p.precision.toFixed(0) + '% precision';
      if (p.id === hostId) li.classList.add('host');
      playersEl.appendChild(li);
    });
    startEl.disabled = racing || myId !== hostId;
  }

  function sendTyped() {
    pending = null;
    ws.send(JSON.stringify({ type: 'typed', text: typedEl.value }));
  }

  ws.onopen = function() {
    statusEl.textContent = 'Connected.';
    const name = prompt('Enter your nickname:') || '';
    if (name) {
      ws.send(JSON.stringify({ type: 'join', room: room, name: name }));
    }
  };

  ws.onmessage = function(event) {
    try {
      const msg = JSON.parse(event.data);

      switch (msg.type) {
      case 'error':
        statusEl.textContent = msg.message;
        break;
      case 'players':
        players.clear();
        msg.players.forEach(function(p) { players.set(p.id, p); });
        if (!myId && msg.players.length) myId = msg.players[msg.players.length - 1].id;
        render();
        break;
      case 'player-joined':
        players.set(msg.id, { id: msg.id, name: msg.name, score: msg.score, precision: msg.precision });
        render();
        break;
      case 'player-left':
        players.delete(msg.id);
        render();
        break;
      case 'new-host':
        hostId = msg.id;
        render();
        break;
      case 'game-started':
        racing = true;
        paragraphEl.textContent = msg.paragraph;
        typedEl.value = '';
        typedEl.disabled = false;
        typedEl.focus();
        statusEl.textContent = 'Go!';
        render();
        break;
      case 'player-score':
        const p = players.get(msg.id);
        if (p) { p.score = msg.score; p.precision = msg.precision; }
        render();
        break;
      case 'game-finished':
        racing = false;
        typedEl.disabled = true;
        statusEl.textContent = 'Race finished.';
        render();
        break;
      case 'game-ended':
        statusEl.textContent = 'The room has ended.';
        break;
      }
    } catch (e) {
      console.error('bad message', e);
    }
  };

  ws.onclose = function() {
    statusEl.textContent = 'Disconnected.';
    typedEl.disabled = true;
  };

  ws.onerror = function() {
    statusEl.textContent = 'Error with WebSocket.';
  };

  startEl.onclick = function() {
    ws.send(JSON.stringify({ type: 'start' }));
  };

  shareEl.onclick = function() {
    qrEl.src = location.pathname.replace(/\/$/, '') + '/qr';
    qrEl.style.display = (qrEl.style.display === 'block') ? 'none' : 'block';
  };

  typedEl.addEventListener('input', function() {
    if (!racing) return;
    if (pending) return;
    pending = setTimeout(sendTyped, 100);
  });
})();
</script>
</body>
</html>
`
