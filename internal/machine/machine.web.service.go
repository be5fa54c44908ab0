// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package machine

import (
	"encoding/json"
	"net/http"
)

// The machine's web page exposes two JSON endpoints for monitoring:
//  - GET /api/status  -> current status snapshot
//  - GET /api/history -> bounded transition history, oldest first
// Mount it under any prefix via the root server.

var statusPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8" />
<title>Machine Status</title>
<style>
body { font-family: system-ui, -apple-system, "Segoe UI", Roboto, "Helvetica Neue", Arial; padding: 24px }
.container { max-width: 900px; margin: 0 auto }
.card { border-radius: 8px; padding: 16px; box-shadow: 0 2px 6px rgba(0,0,0,0.08); margin-bottom: 16px }
table { width: 100%; border-collapse: collapse }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #eee }
</style>
</head>
<body>
<div class="container">
<h1>Machine Status</h1>
<div class="card"><pre id="status"></pre></div>
<h2>Recent Transitions</h2>
<div class="card">
<table id="history"><tr><th>Time</th><th>From</th><th>To</th><th>Trigger</th><th>Reasoning</th></tr></table>
</div>
</div>
<script>
async function render() {
  const status = await (await fetch('./api/status')).json();
  document.getElementById('status').textContent = JSON.stringify(status, null, 2);

  const history = await (await fetch('./api/history')).json();
  const table = document.getElementById('history');
  while (table.rows.length > 1) table.deleteRow(1);
  for (const rec of history.slice().reverse()) {
    const row = table.insertRow();
    row.insertCell().textContent = new Date(rec.time).toLocaleTimeString();
    row.insertCell().textContent = rec.from;
    row.insertCell().textContent = rec.to;
    row.insertCell().textContent = rec.trigger;
    row.insertCell().textContent = rec.reasoning;
  }
}
render();
setInterval(render, 10_000);
</script>
</body>
</html>`

// ServeHTTP implements http.Handler.
func (m *Machine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "", "/":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(statusPage))

	case "/api/status":
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(m.Status())

	case "/api/history":
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(m.History())

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}
}
