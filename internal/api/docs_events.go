package api

const eventsDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Event Stream - Tab Trim</title>
  <style>
    body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; font-size: 14px; line-height: 1.65; background: #0d1117; color: #c9d1d9; }
    main { max-width: 860px; margin: 0 auto; padding: 24px 16px; }
    a { color: #58a6ff; text-decoration: none; }
    h1, h2 { color: #e6edf3; }
    code, pre { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 13px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px 16px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #30363d; padding: 6px 10px; text-align: left; vertical-align: top; }
  </style>
</head>
<body>
<main>
  <p><a href="/docs">&larr; API reference</a></p>
  <h1>Event Stream</h1>
  <p>
    <code>GET /api/v1/events</code> is a Server-Sent Events stream of tab lifecycle
    changes and trim decisions. Filter with <code>?feeds=trim,tab</code>.
    Idle streams receive a comment line every 15 seconds.
  </p>

  <h2>Feeds</h2>
  <table>
    <tr><th>Feed</th><th>Payload</th></tr>
    <tr><td><code>tab</code></td><td><code>kind</code> (created, navigated, destroyed), <code>id</code>, <code>target_id</code>, <code>url</code>, <code>window_id</code></td></tr>
    <tr><td><code>trim</code></td><td>One removal: <code>rule</code>, <code>trigger_id</code>, <code>tab_id</code>, <code>url</code>, <code>group_key</code>, <code>dry_run</code>, <code>error</code></td></tr>
  </table>

  <h2>Format</h2>
  <pre><code>id: 42
event: trim
data: {"timestamp":"2026-01-02T03:04:05Z","rule":"host","trigger_id":9,"group_key":"example.com","tab_id":3,"url":"https://example.com/a"}
</code></pre>

  <h2>Examples</h2>
  <pre><code>curl -N http://127.0.0.1:8190/api/v1/events
curl -N 'http://127.0.0.1:8190/api/v1/events?feeds=trim'</code></pre>
  <pre><code>const sse = new EventSource('http://127.0.0.1:8190/api/v1/events?feeds=trim');
sse.addEventListener('trim', (e) => console.log(JSON.parse(e.data)));</code></pre>
</main>
</body>
</html>`
