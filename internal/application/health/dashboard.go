package health

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"
)

// RenderDashboardHTML returns the status page served at GET /.
func RenderDashboardHTML(r CollectResult) string {
	b, _ := json.Marshal(r)
	// embedded in a JS template literal
	jsonStr := strings.NewReplacer("\\", "\\\\", "`", "\\`", "$", "\\$").Replace(string(b))

	headline := "All Systems Operational"
	if r.Status != "ok" {
		headline = "System Issues Detected"
	}

	names := make([]string, 0, len(r.Dependencies))
	for name := range r.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	var deps strings.Builder
	for _, name := range names {
		d := r.Dependencies[name]
		class := "err"
		if d.Status == "connected" || d.Status == "reachable" || d.Status == "disabled" {
			class = "ok"
		}
		ping := "--"
		if d.PingMs != nil {
			ping = fmt.Sprint(*d.PingMs)
		}
		fmt.Fprintf(&deps, `<div class="row"><span>%s</span><span id="pill-%s" class="pill %s"><span class="dot"></span><span id="ping-%s">%s · %s ms</span></span></div>`,
			html.EscapeString(name), html.EscapeString(name), class, html.EscapeString(name), html.EscapeString(d.Status), ping)
	}

	last := "-"
	if r.Traffic.LastRequest != nil {
		last = fmt.Sprintf("%v %v", r.Traffic.LastRequest["method"], r.Traffic.LastRequest["path"])
	}

	return `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Unit Fund · API Status</title>
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <style>
    :root { --ok: #047857; --dark: #111827; --muted: #6B7280; --bg: #F3F4F6; }
    body { background: var(--bg); color: var(--dark); font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 48px 16px; }
    .container { max-width: 960px; margin: 0 auto; }
    h1 { font-size: 40px; margin: 0 0 8px 0; letter-spacing: -1px; }
    .subtext { color: var(--muted); margin: 0 0 28px 0; }
    .card { background: #FFFFFF; border-radius: 16px; display: grid; grid-template-columns: repeat(3, 1fr); box-shadow: 0 10px 40px rgba(0,0,0,0.06); }
    .col { padding: 32px; border-right: 1px solid #E5E7EB; }
    .col:last-child { border-right: none; }
    .label { text-transform: uppercase; font-size: 11px; font-weight: 800; letter-spacing: 2px; color: #9CA3AF; margin-bottom: 18px; }
    .big { font-size: 34px; font-weight: 800; margin-bottom: 10px; }
    .row { display: flex; justify-content: space-between; padding: 7px 0; border-bottom: 1px solid #F3F4F6; font-size: 14px; }
    .pill { padding: 3px 10px; border-radius: 8px; font-size: 11px; font-weight: 800; display: flex; gap: 6px; align-items: center; }
    .ok { background: rgba(4,120,87,0.08); color: var(--ok); }
    .err { background: rgba(220,38,38,0.08); color: #DC2626; }
    .dot { width: 7px; height: 7px; border-radius: 50%; background: currentColor; }
    .footer { margin-top: 18px; font-family: monospace; color: var(--muted); display: flex; justify-content: space-between; }
    @media (max-width: 800px) { .card { grid-template-columns: 1fr; } .col { border-right: none; border-bottom: 1px solid #E5E7EB; } }
  </style>
</head>
<body>
  <div class="container">
    <h1 id="headline">` + headline + `</h1>
    <p class="subtext">Valuation engine, allocation pipeline and their dependencies.</p>
    <div class="card">
      <div class="col">
        <div class="label">Traffic</div>
        <div class="big" id="total-req">` + fmt.Sprint(r.Traffic.TotalRequests) + `</div>
        <div class="row"><span>Successful</span><span id="success-count">` + fmt.Sprint(r.Traffic.SuccessCount) + `</span></div>
        <div class="row"><span>Failed</span><span id="failed-count">` + fmt.Sprint(r.Traffic.FailedCount) + `</span></div>
        <div class="row"><span>Success Rate</span><span id="success-rate">` + r.Traffic.SuccessRate + `%</span></div>
        <div class="row"><span>Avg Latency</span><span id="avg-time">` + r.Traffic.AvgResponseTime + `ms</span></div>
      </div>
      <div class="col">
        <div class="label">Runtime</div>
        <div class="big" id="uptime">` + fmt.Sprint(r.Runtime.UptimeSeconds) + `s</div>
        <div class="row"><span>Heap Used</span><span id="mem-heap">` + fmt.Sprint(r.Runtime.Memory.HeapUsed) + ` MB</span></div>
        <div class="row"><span>Goroutines</span><span id="goroutines">` + fmt.Sprint(r.Runtime.Goroutines) + `</span></div>
        <div class="row"><span>Platform</span><span>` + html.EscapeString(r.Runtime.Platform) + `</span></div>
      </div>
      <div class="col">
        <div class="label">Dependencies</div>
        ` + deps.String() + `
      </div>
    </div>
    <div class="footer"><span id="last-req">` + html.EscapeString(last) + `</span><a href="/health/errors">/health/errors</a></div>
  </div>
  <script>
    const render = (d) => {
      document.getElementById('headline').innerText = d.status === 'ok' ? 'All Systems Operational' : 'System Issues Detected';
      document.getElementById('total-req').innerText = d.traffic.totalRequests;
      document.getElementById('success-count').innerText = d.traffic.successCount;
      document.getElementById('failed-count').innerText = d.traffic.failedCount;
      document.getElementById('success-rate').innerText = d.traffic.successRate + '%';
      document.getElementById('avg-time').innerText = d.traffic.avgResponseTime + 'ms';
      document.getElementById('uptime').innerText = d.runtime.uptimeSeconds + 's';
      document.getElementById('mem-heap').innerText = d.runtime.memory.heapUsed + ' MB';
      document.getElementById('goroutines').innerText = d.runtime.goroutines;
      for (const [name, dep] of Object.entries(d.dependencies)) {
        const pill = document.getElementById('pill-' + name);
        if (!pill) continue;
        const ok = ['connected', 'reachable', 'disabled'].includes(dep.status);
        pill.className = 'pill ' + (ok ? 'ok' : 'err');
        document.getElementById('ping-' + name).innerText = dep.status + ' · ' + (dep.pingMs != null ? dep.pingMs : '--') + ' ms';
      }
    };
    render(JSON.parse(` + "`" + jsonStr + "`" + `));
    setInterval(async () => { try { const r = await fetch('/health/json'); render(await r.json()); } catch (e) {} }, 15000);
  </script>
</body>
</html>`
}
