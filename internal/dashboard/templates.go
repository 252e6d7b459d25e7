package dashboard

import (
	"html/template"
	"strings"
)

var tmplFuncs = template.FuncMap{
	"areaCell": areaCell,
	"join":     strings.Join,
}

func page(name, body string) *template.Template {
	return template.Must(template.New(name).Funcs(tmplFuncs).Parse(layoutHead + body + layoutFoot))
}

const layoutHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>controldesk · {{.Active}}</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
:root{
  --bg:#0a0a0f;--surface:#12121a;--surface2:#1a1a26;--border:#2a2a3a;
  --text:#e0e0ee;--text2:#8888aa;--text3:#555570;
  --accent:#6366f1;--accent-light:#818cf8;--accent-dim:#4f46e5;
  --danger:#ef4444;--success:#22c55e;--warn:#f59e0b;--info:#3b82f6;--purple:#a855f7;
  --mono:'SF Mono','Fira Code','JetBrains Mono',monospace;
  --sans:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;
}
body{font-family:var(--sans);background:var(--bg);color:var(--text);min-height:100vh}

nav{background:var(--surface);border-bottom:1px solid var(--border);padding:0 24px;display:flex;align-items:center;height:52px;position:sticky;top:0;z-index:100}
nav .logo{font-family:var(--mono);font-size:1.1rem;font-weight:700;letter-spacing:-0.5px;margin-right:32px;text-decoration:none;color:var(--text)}
nav .logo span{color:var(--accent-light)}
nav a{color:var(--text2);text-decoration:none;font-size:0.82rem;padding:16px 12px;transition:color 0.2s;border-bottom:2px solid transparent}
nav a:hover{color:var(--text)}
nav a.active{color:var(--accent-light);border-bottom-color:var(--accent-light)}
nav .spacer{flex:1}

main{max-width:1100px;margin:0 auto;padding:32px 24px}
h1{font-size:1.4rem;font-weight:600;margin-bottom:8px}
h1 span{color:var(--accent-light)}
.page-desc{color:var(--text2);font-size:0.85rem;margin-bottom:28px}

.stats{display:grid;grid-template-columns:repeat(4,1fr);gap:16px;margin-bottom:32px}
.stat{background:var(--surface);border:1px solid var(--border);border-radius:10px;padding:20px}
.stat .label{color:var(--text3);font-size:0.72rem;text-transform:uppercase;letter-spacing:1px;margin-bottom:6px}
.stat .value{font-family:var(--mono);font-size:1.8rem;font-weight:700}
.stat .value.success{color:var(--success)}
.stat .value.danger{color:var(--danger)}
.stat .value.warn{color:var(--warn)}

.card{background:var(--surface);border:1px solid var(--border);border-radius:10px;padding:20px;margin-bottom:20px}
.card h2{font-size:0.95rem;font-weight:600;margin-bottom:16px;display:flex;align-items:center;gap:8px}
.card h2 .dot{width:6px;height:6px;border-radius:50%;background:var(--success);animation:pulse 2s infinite}
@keyframes pulse{0%,100%{opacity:1}50%{opacity:0.4}}

table{width:100%;border-collapse:collapse;font-size:0.82rem}
th{text-align:left;color:var(--text3);font-size:0.7rem;text-transform:uppercase;letter-spacing:1px;padding:8px 12px;border-bottom:1px solid var(--border)}
td{padding:10px 12px;border-bottom:1px solid var(--border);color:var(--text2);font-family:var(--mono);font-size:0.78rem}
tr:hover td{background:var(--surface2)}
td a{color:var(--text);text-decoration:none}
td a:hover{color:var(--accent-light)}

.badge-red,.badge-yellow,.badge-green,.badge-blue,.badge-purple,.badge-gray,.badge-neutral{padding:3px 8px;border-radius:4px;font-size:0.7rem;font-weight:600;white-space:nowrap}
.badge-red{background:#ef444420;color:var(--danger)}
.badge-yellow{background:#f59e0b20;color:var(--warn)}
.badge-green{background:#22c55e20;color:var(--success)}
.badge-blue{background:#3b82f620;color:var(--info)}
.badge-purple{background:#a855f720;color:var(--purple)}
.badge-gray,.badge-neutral{background:var(--surface2);color:var(--text3)}

.progress{background:var(--surface2);border-radius:4px;height:6px;width:80px;overflow:hidden;display:inline-block;vertical-align:middle;margin-right:6px}
.progress div{background:var(--accent);height:100%}

.area-cell{display:inline-flex;align-items:center;gap:6px}
.avatar{vertical-align:middle;flex-shrink:0}

.toast{padding:11px 16px;border-left:3px solid var(--danger);background:rgba(239,68,68,0.06);margin-bottom:24px;font-size:0.82rem;color:var(--text)}
.toast.ok{border-left-color:var(--success);background:rgba(34,197,94,0.06)}

.empty{color:var(--text3);text-align:center;padding:40px 0;font-size:0.85rem}

.form-row{display:flex;gap:12px;margin-bottom:12px;align-items:flex-end}
.form-group{flex:1}
.form-group label{display:block;color:var(--text3);font-size:0.7rem;text-transform:uppercase;letter-spacing:1px;margin-bottom:4px}
.form-group input,.form-group select,.form-group textarea{
  width:100%;padding:8px 12px;background:var(--bg);border:1px solid var(--border);
  border-radius:6px;color:var(--text);font-family:var(--mono);font-size:0.82rem;outline:none;transition:border-color 0.2s;
}
.form-group input:focus,.form-group select:focus,.form-group textarea:focus{border-color:var(--accent)}
.form-group textarea{resize:vertical;min-height:320px}
.btn{display:inline-block;padding:8px 16px;background:var(--accent);color:#fff;border:none;border-radius:6px;font-size:0.82rem;font-weight:600;cursor:pointer;transition:background 0.2s}
.btn:hover{background:var(--accent-dim)}
.btn-sm{padding:4px 10px;font-size:0.72rem}
.btn-ghost{background:var(--surface2);color:var(--text2);border:1px solid var(--border)}
.btn-ghost:hover{background:var(--accent-dim);color:#fff}
form.inline{display:inline}

.presets{display:flex;flex-wrap:wrap;gap:8px;margin-top:8px}
.preset{display:inline-flex;align-items:center;gap:4px;background:var(--surface2);border:1px solid var(--border);border-radius:14px;padding:2px 4px 2px 10px;font-size:0.75rem}
.preset button{background:none;border:none;color:var(--text2);cursor:pointer;font-size:0.75rem;padding:2px 4px}
.preset button:hover{color:var(--accent-light)}

.field{margin-bottom:14px}
.field-label{color:var(--text3);font-size:0.7rem;text-transform:uppercase;letter-spacing:1px;margin-bottom:4px}
.field-value{font-size:0.85rem;color:var(--text);line-height:1.5}
ol.steps{padding-left:20px;color:var(--text2);font-size:0.82rem;line-height:1.7}
pre.snippet{font-family:var(--mono);font-size:0.74rem;color:var(--text2);background:var(--bg);padding:10px 12px;border-radius:6px;overflow-x:auto;margin-top:6px}
.grid2{display:grid;grid-template-columns:1fr 1fr;gap:20px}

.sse-indicator{display:inline-flex;align-items:center;gap:6px;font-size:0.72rem;color:var(--text3)}
.sse-dot{width:6px;height:6px;border-radius:50%;background:var(--text3)}
.sse-dot.connected{background:var(--success);animation:pulse 2s infinite}

@media(max-width:768px){
  .stats{grid-template-columns:repeat(2,1fr)}
  .form-row{flex-direction:column}
  .grid2{grid-template-columns:1fr}
}
</style>
</head>
<body>
<nav>
  <a href="/dashboard" class="logo">control<span>desk</span></a>
  <a href="/dashboard" class="{{if eq .Active "overview"}}active{{end}}">Controls</a>
  {{if .Journal}}<a href="/dashboard/history" class="{{if eq .Active "history"}}active{{end}}">History</a>{{end}}
  <div class="spacer"></div>
  <form method="POST" action="/dashboard/reload" class="inline"><button type="submit" class="btn btn-sm btn-ghost">Reload</button></form>
</nav>
<main>
{{with .Toast}}<div class="toast{{if .OK}} ok{{end}}" role="status">{{.Message}}</div>{{end}}
`

const layoutFoot = `</main>
</body>
</html>`

var overviewTmpl = page("overview", `
<h1>Controls <span>Dashboard</span></h1>
<p class="page-desc">
  {{if .HasPlan}}{{.Plan.Framework}}{{with .Plan.Industry}} &middot; {{.}}{{end}}{{with .Plan.TechStack}} &middot; {{join . ", "}}{{end}}{{else}}No plan generated yet.{{end}}
  {{if .Journal}}<span class="sse-indicator"><span class="sse-dot" id="sse-dot"></span> <span id="sse-label">connecting</span></span>{{end}}
</p>

<div class="stats">
  <div class="stat"><div class="label">Total Controls</div><div class="value" id="stat-total">{{.Summary.Total}}</div></div>
  <div class="stat"><div class="label">High Risk</div><div class="value danger" id="stat-high">{{.Summary.HighRisk}}</div></div>
  <div class="stat"><div class="label">Completed</div><div class="value success" id="stat-completed">{{.Summary.Completed}}</div></div>
  <div class="stat"><div class="label">In Progress</div><div class="value warn" id="stat-progress">{{.Summary.InProgress}}</div></div>
</div>

<div class="card">
  <h2>Filter</h2>
  <form method="POST" action="/dashboard/filter">
    <div class="form-row">
      <div class="form-group">
        <label for="status">Status</label>
        <select name="status" id="status">
          <option value="">All</option>
          {{range .Statuses}}<option value="{{.}}"{{if eq $.Filter.Status .}} selected{{end}}>{{.}}</option>{{end}}
        </select>
      </div>
      <div class="form-group">
        <label for="risk">Risk</label>
        <select name="risk" id="risk">
          <option value="">All</option>
          {{range .Risks}}<option value="{{.}}"{{if eq $.Filter.Risk .}} selected{{end}}>{{.}}</option>{{end}}
        </select>
      </div>
      <div class="form-group">
        <label for="type">Type</label>
        <select name="type" id="type">
          <option value="">All</option>
          {{range .Types}}<option value="{{.}}"{{if eq $.Filter.Type .}} selected{{end}}>{{.}}</option>{{end}}
        </select>
      </div>
      {{if .Frameworks}}<div class="form-group">
        <label for="framework">Framework</label>
        <select name="framework" id="framework">
          <option value="">All</option>
          {{range .Frameworks}}<option value="{{.}}"{{if eq $.Filter.Framework .}} selected{{end}}>{{.}}</option>{{end}}
        </select>
      </div>{{end}}
      <div class="form-group">
        <label for="search">Search</label>
        <input type="text" name="search" id="search" value="{{.Filter.Search}}" placeholder="description or area">
      </div>
      <div><button type="submit" class="btn">Apply</button></div>
    </div>
  </form>
  <div class="form-row">
    <form method="POST" action="/dashboard/filter/clear" class="inline"><button type="submit" class="btn btn-sm btn-ghost">Clear</button></form>
    <form method="POST" action="/dashboard/presets" class="inline">
      <input type="text" name="name" placeholder="preset name" style="padding:4px 8px;background:var(--bg);border:1px solid var(--border);border-radius:6px;color:var(--text);font-size:0.75rem">
      <button type="submit" class="btn btn-sm btn-ghost">Save preset</button>
    </form>
  </div>
  {{if .Presets}}
  <div class="presets">
    {{range .Presets}}
    <span class="preset">{{.Name}}
      <form method="POST" action="/dashboard/presets/{{.Name}}/apply" class="inline"><button type="submit" title="Apply">&#9654;</button></form>
      <form method="POST" action="/dashboard/presets/{{.Name}}/delete" class="inline"><button type="submit" title="Delete">&times;</button></form>
    </span>
    {{end}}
  </div>
  {{end}}
</div>

<div class="card">
  <h2>Controls</h2>
  {{if .Rows}}
  <table>
    <thead><tr><th>ID</th><th>Description</th><th>Area</th><th>Type</th><th>Risk</th><th>Status</th><th>Progress</th><th></th></tr></thead>
    <tbody>
    {{range .Rows}}
    <tr>
      <td><a href="/dashboard/controls/{{.ID}}">{{.ID}}</a></td>
      <td style="font-family:var(--sans)">{{.Description}}</td>
      <td>{{areaCell .Area}}</td>
      <td><span class="{{.TypeClass}}">{{.Type}}</span></td>
      <td><span class="{{.RiskClass}}">{{.Risk}}</span></td>
      <td><span class="{{.StatusClass}}">{{.Status}}</span></td>
      <td><span class="progress"><div style="width:{{.Progress}}%"></div></span>{{.Progress}}%</td>
      <td>{{if .Action}}<form method="POST" action="/dashboard/controls/{{.ID}}/advance" class="inline"><button type="submit" class="btn btn-sm">{{.Action}}</button></form>{{end}}</td>
    </tr>
    {{end}}
    </tbody>
  </table>
  {{else}}
  <div class="empty">No controls match the current filter.</div>
  {{end}}
</div>

<div class="card">
  <h2>Generate Plan</h2>
  <form method="POST" action="/dashboard/plan">
    <div class="form-row">
      <div class="form-group"><label for="framework">Framework</label><input type="text" name="framework" id="framework" placeholder="SOC2" required></div>
      <div class="form-group"><label for="industry">Industry</label><input type="text" name="industry" id="industry" placeholder="Fintech"></div>
      <div class="form-group"><label for="tech_stack">Tech stack</label><input type="text" name="tech_stack" id="tech_stack" placeholder="AWS, Kubernetes, PostgreSQL"></div>
      <div><button type="submit" class="btn">Generate</button></div>
    </div>
  </form>
</div>

{{if .Journal}}
<div class="card">
  <h2><span class="dot"></span> Recent Activity</h2>
  <div id="recent-events">
  {{if .Recent}}
  <table>
    <thead><tr><th>Time</th><th>Event</th><th>Control</th><th>Message</th></tr></thead>
    <tbody id="events-tbody">
    {{range .Recent}}
    <tr><td>{{.Timestamp}}</td><td>{{.Type}}</td><td>{{.ControlID}}</td><td style="font-family:var(--sans)">{{.Message}}</td></tr>
    {{end}}
    </tbody>
  </table>
  {{else}}
  <div class="empty" id="empty-msg">No activity yet.</div>
  {{end}}
  </div>
</div>

<script>
(function() {
  var dot = document.getElementById('sse-dot');
  var label = document.getElementById('sse-label');
  function esc(s) { var d = document.createElement('div'); d.textContent = s || ''; return d.innerHTML; }
  var evtSource = new EventSource('/dashboard/api/events');
  evtSource.onopen = function() { dot.classList.add('connected'); label.textContent = 'live'; };
  evtSource.onerror = function() { dot.classList.remove('connected'); label.textContent = 'reconnecting'; };
  evtSource.onmessage = function(e) {
    try {
      var entry = JSON.parse(e.data);
      var tbody = document.getElementById('events-tbody');
      var empty = document.getElementById('empty-msg');
      if (empty) empty.remove();
      if (!tbody) {
        document.getElementById('recent-events').innerHTML = '<table><thead><tr><th>Time</th><th>Event</th><th>Control</th><th>Message</th></tr></thead><tbody id="events-tbody"></tbody></table>';
        tbody = document.getElementById('events-tbody');
      }
      var row = document.createElement('tr');
      row.innerHTML = '<td>' + esc(entry.timestamp) + '</td><td>' + esc(entry.type) + '</td><td>' + esc(entry.control_id) + '</td><td style="font-family:var(--sans)">' + esc(entry.message) + '</td>';
      tbody.insertBefore(row, tbody.firstChild);
      while (tbody.children.length > 20) tbody.removeChild(tbody.lastChild);
      fetch('/dashboard/api/summary').then(function(r) { return r.json(); }).then(function(s) {
        document.getElementById('stat-total').textContent = s.total;
        document.getElementById('stat-high').textContent = s.high_risk;
        document.getElementById('stat-completed').textContent = s.completed;
        document.getElementById('stat-progress').textContent = s.in_progress;
      });
    } catch(err) {}
  };
})();
</script>
{{end}}
`)

var controlTmpl = page("control", `
{{with .Control}}
<h1>{{.ID}} <span>{{.Area}}</span></h1>
<p class="page-desc">{{.Description}}</p>

<div class="card">
  <div class="form-row" style="align-items:center">
    <span class="{{.Type.Class}}">{{.Type}}</span>
    <span class="{{.Risk.Class}}">{{.Risk}} risk</span>
    <span class="{{.Status.Class}}">{{.Status}}</span>
    <span><span class="progress"><div style="width:{{.Progress}}%"></div></span>{{.Progress}}%</span>
    <div class="spacer" style="flex:1"></div>
    {{if $.Action}}<form method="POST" action="/dashboard/controls/{{.ID}}/advance" class="inline"><input type="hidden" name="from" value="detail"><button type="submit" class="btn">{{$.Action}}</button></form>{{end}}
  </div>
  {{if $.Action}}
  <form method="POST" action="/dashboard/controls/{{.ID}}/progress" class="form-row" style="margin-top:12px;align-items:center">
    <label for="progress" class="field-label">Progress</label>
    <input type="number" name="progress" id="progress" min="{{.Progress}}" max="99" value="{{.Progress}}" style="width:80px">
    <button type="submit" class="btn btn-sm btn-ghost">Update</button>
  </form>
  {{end}}
  {{with .RiskStatement}}<div class="field"><div class="field-label">Risk</div><div class="field-value">{{.}}</div></div>{{end}}
  {{with .Framework}}<div class="field"><div class="field-label">Framework</div><div class="field-value">{{.}}</div></div>{{end}}
  {{with .CreatedAt}}<div class="field"><div class="field-label">Created</div><div class="field-value">{{.Format "2006-01-02"}}</div></div>{{end}}
</div>

<div class="grid2">
  <div class="card">
    <h2>Test of Design</h2>
    {{if .TestOfDesign.Steps}}<ol class="steps">{{range .TestOfDesign.Steps}}<li>{{.}}</li>{{end}}</ol>{{else}}<div class="empty">No steps.</div>{{end}}
    {{with .TestOfDesign.Evidence}}<div class="field" style="margin-top:12px"><div class="field-label">Evidence</div><div class="field-value">{{join . ", "}}</div></div>{{end}}
  </div>
  <div class="card">
    <h2>Test of Effectiveness</h2>
    {{if .TestOfEffectiveness.Steps}}<ol class="steps">{{range .TestOfEffectiveness.Steps}}<li>{{.}}</li>{{end}}</ol>{{else}}<div class="empty">No steps.</div>{{end}}
    {{with .TestOfEffectiveness.Evidence}}<div class="field" style="margin-top:12px"><div class="field-label">Evidence</div><div class="field-value">{{join . ", "}}</div></div>{{end}}
  </div>
</div>

{{if .CustomTestingSteps}}
<div class="card">
  <h2>Technology Steps</h2>
  {{range .CustomTestingSteps}}
  <div class="field">
    <div class="field-label">{{.Technology}}</div>
    <div class="field-value">{{.Steps}}</div>
    {{with .AutomationArtifact.Snippet}}<pre class="snippet">{{.}}</pre>{{end}}
    {{with .AutomationArtifact.Description}}<div class="page-desc" style="margin:4px 0 0">{{.}}</div>{{end}}
  </div>
  {{end}}
</div>
{{end}}

<div class="card">
  <h2>Documents</h2>
  <div class="form-row">
    <form method="POST" action="/dashboard/controls/{{.ID}}/documents/policy" class="inline"><button type="submit" class="btn btn-ghost">Generate Policy</button></form>
    <form method="POST" action="/dashboard/controls/{{.ID}}/documents/procedure" class="inline"><button type="submit" class="btn btn-ghost">Generate Procedure</button></form>
  </div>
  {{if $.DocKind}}
  <form method="POST" action="/dashboard/controls/{{.ID}}/documents/{{$.DocKind}}/save">
    <div class="form-group">
      <label for="content">{{.Area}} {{$.DocTitle}}</label>
      <textarea name="content" id="content">{{$.Document}}</textarea>
    </div>
    <div style="margin-top:12px"><button type="submit" class="btn">Save {{$.DocTitle}}</button></div>
  </form>
  {{end}}
</div>

<div class="card">
  <h2>Evidence</h2>
  {{if $.EvidenceError}}
  <div class="empty">{{$.EvidenceError}}</div>
  {{else if $.Evidence}}
  <table>
    <thead><tr><th>File</th><th>Size</th><th>Uploaded</th><th>By</th><th>Status</th><th></th></tr></thead>
    <tbody>
    {{range $.Evidence}}<tr>
      <td title="{{.Description}}">{{.Filename}}</td>
      <td>{{.Size}} bytes</td>
      <td>{{.UploadDate.Format "2006-01-02 15:04"}}</td>
      <td>{{.UploadedBy}}</td>
      <td><span class="{{.Status.Class}}">{{.Status.Label}}</span></td>
      <td>{{if eq (print .Status) "pending_review"}}
        <form method="POST" action="/dashboard/controls/{{.ControlID}}/evidence/{{.ID}}/review" class="inline"><input type="hidden" name="status" value="approved"><button type="submit" class="btn btn-sm">Approve</button></form>
        <form method="POST" action="/dashboard/controls/{{.ControlID}}/evidence/{{.ID}}/review" class="inline"><input type="hidden" name="status" value="rejected"><button type="submit" class="btn btn-sm btn-ghost">Reject</button></form>
      {{end}}</td>
    </tr>{{end}}
    </tbody>
  </table>
  {{else}}
  <div class="empty">No evidence uploaded yet.</div>
  {{end}}
  <form method="POST" action="/dashboard/controls/{{.ID}}/evidence" enctype="multipart/form-data" class="form-row" style="margin-top:12px;align-items:flex-end">
    <div class="form-group"><label for="file">File</label><input type="file" name="file" id="file" required></div>
    <div class="form-group"><label for="description">Description</label><input type="text" name="description" id="description"></div>
    <div class="form-group"><label for="uploaded_by">Uploaded by</label><input type="text" name="uploaded_by" id="uploaded_by"></div>
    <button type="submit" class="btn">Upload</button>
  </form>
</div>
{{end}}

{{if .Journal}}
<div class="card">
  <h2>Activity</h2>
  {{if .Activity}}
  <table>
    <thead><tr><th>Time</th><th>Event</th><th>From</th><th>To</th><th>Message</th></tr></thead>
    <tbody>
    {{range .Activity}}<tr><td>{{.Timestamp}}</td><td>{{.Type}}</td><td>{{.FromStatus}}</td><td>{{.ToStatus}}</td><td style="font-family:var(--sans)">{{.Message}}</td></tr>{{end}}
    </tbody>
  </table>
  {{else}}
  <div class="empty">No activity for this control yet.</div>
  {{end}}
</div>
{{end}}
`)

var notFoundTmpl = page("not-found", `
<h1>Control <span>{{.ID}}</span> not found</h1>
<p class="page-desc">It may have been replaced by a reload or a new plan. <a href="/dashboard" style="color:var(--accent-light)">Back to controls</a></p>
`)

var historyTmpl = page("history", `
<h1>Activity <span>History</span></h1>
<p class="page-desc">Every status change, persist failure and document action recorded by the journal.</p>

{{if .Stats}}
<div class="stats">
  {{range .Stats}}
  <div class="stat"><div class="label">{{.Type}}</div><div class="value{{if .Failed}} danger{{end}}">{{.Count}}</div></div>
  {{end}}
</div>
{{end}}

<div class="card">
  <form method="GET" action="/dashboard/history">
    <div class="form-row">
      <div class="form-group">
        <label for="type">Event</label>
        <select name="type" id="type">
          <option value="">All</option>
          {{range .EventTypes}}<option value="{{.}}"{{if eq (print .) $.Query.Type}} selected{{end}}>{{.}}</option>{{end}}
        </select>
      </div>
      <div class="form-group"><label for="control">Control</label><input type="text" name="control" id="control" value="{{.Query.ControlID}}"></div>
      <div class="form-group"><label for="q">Search</label><input type="text" name="q" id="q" value="{{.Query.Search}}"></div>
      <div><button type="submit" class="btn">Filter</button></div>
    </div>
  </form>
  {{if .Entries}}
  <table>
    <thead><tr><th>Time</th><th>Event</th><th>Control</th><th>From</th><th>To</th><th>Message</th></tr></thead>
    <tbody>
    {{range .Entries}}
    <tr>
      <td>{{.Timestamp}}</td>
      <td>{{if .OK}}<span class="badge-green">{{.Type}}</span>{{else}}<span class="badge-red">{{.Type}}</span>{{end}}</td>
      <td>{{if .ControlID}}<a href="/dashboard/controls/{{.ControlID}}">{{.ControlID}}</a>{{end}}</td>
      <td>{{.FromStatus}}</td>
      <td>{{.ToStatus}}</td>
      <td style="font-family:var(--sans)">{{.Message}}</td>
    </tr>
    {{end}}
    </tbody>
  </table>
  {{else}}
  <div class="empty">No journal entries match.</div>
  {{end}}
</div>

{{if .Activity}}
<div class="card">
  <h2>Most Active Controls</h2>
  <table>
    <thead><tr><th>Control</th><th>Events</th><th>Advances</th><th>Failures</th><th>Last Change</th></tr></thead>
    <tbody>
    {{range .Activity}}<tr><td><a href="/dashboard/controls/{{.ControlID}}">{{.ControlID}}</a></td><td>{{.Events}}</td><td>{{.Advances}}</td><td>{{.Failures}}</td><td>{{.LastChange}}</td></tr>{{end}}
    </tbody>
  </table>
</div>
{{end}}
`)
