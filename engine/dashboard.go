package engine

import (
	"fmt"
	"net/http"
)

func HandleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, dashboardHTML)
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Hovertrail Dashboard</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
         background: #101820; color: #e6edf3; padding: 20px; }
  h1 { background: linear-gradient(135deg, #1f9d8f, #17665e); padding: 14px 24px;
       border-radius: 10px; margin-bottom: 24px; font-size: 22px;
       display: flex; align-items: center; justify-content: space-between; }
  h1 .dot { width: 10px; height: 10px; border-radius: 50%; background: #7fffd4;
            display: inline-block; margin-right: 8px; }
  h1 .dot.stopped { background: #f55; }
  h2 { margin-bottom: 12px; font-size: 15px; color: #8b98a5; text-transform: uppercase; }
  .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(170px, 1fr));
          gap: 12px; margin-bottom: 26px; }
  .card { background: #18232e; border-radius: 8px; padding: 16px; border-left: 4px solid #2b3b4c; }
  .card .label { font-size: 11px; text-transform: uppercase; color: #8b98a5; }
  .card .value { font-size: 28px; font-weight: bold; color: #3fd1c0; margin-top: 4px;
                 font-variant-numeric: tabular-nums; }
  .card .unit { font-size: 13px; color: #667; }
  .card.perf .value { color: #f0b429; }
  table { width: 100%; border-collapse: collapse; background: #18232e; border-radius: 8px; }
  th { background: #22313f; padding: 9px 12px; text-align: left; font-size: 12px; text-transform: uppercase; }
  td { padding: 8px 12px; border-bottom: 1px solid #101820; font-size: 14px; }
  .badge { padding: 2px 8px; border-radius: 4px; font-size: 11px; font-weight: 600; }
  .badge.bot { background: #6f42c1; }
  .badge.human { background: #1f6feb; }
  .digest { font-family: monospace; font-size: 11px; color: #667; margin-top: 16px; word-break: break-all; }
  .status-bar { font-size: 11px; color: #556; margin-top: 8px; text-align: right; }
</style>
</head>
<body>
<h1><span><span class="dot" id="dot"></span>Hovertrail <span id="version" style="font-size:13px;font-weight:normal;opacity:.6"></span></span><span id="uptime" style="font-size:14px;font-weight:normal;opacity:.8"></span></h1>
<div class="grid" id="cards"></div>
<h2>Leaderboard</h2>
<table>
  <thead><tr><th>#</th><th>Name</th><th>Score</th><th>Length</th><th>Type</th></tr></thead>
  <tbody id="lb"></tbody>
</table>
<div class="digest" id="digest"></div>
<div class="status-bar" id="status">Connecting...</div>
<script>
function fmtBytes(v) {
  if (v >= 1073741824) return (v/1073741824).toFixed(2)+'<span class="unit"> GB</span>';
  if (v >= 1048576) return (v/1048576).toFixed(1)+'<span class="unit"> MB</span>';
  if (v >= 1024) return (v/1024).toFixed(1)+'<span class="unit"> KB</span>';
  return v+'<span class="unit"> B</span>';
}
const cardDefs = [
  {k:'tick',           label:'Tick',           unit:''},
  {k:'currentPlayers', label:'Players Online', unit:''},
  {k:'peakPlayers',    label:'Peak Players',   unit:''},
  {k:'botCount',       label:'Bots',           unit:''},
  {k:'itemCount',      label:'Items',          unit:''},
  {k:'totalKills',     label:'Total Kills',    unit:''},
  {k:'totalDeaths',    label:'Total Deaths',   unit:''},
  {k:'totalJoins',     label:'Total Joins',    unit:''},
  {k:'totalLeaves',    label:'Total Leaves',   unit:''},
  {k:'avgTickMs',      label:'Avg Tick',       unit:'ms', perf:true},
  {k:'maxTickMs',      label:'Max Tick',       unit:'ms', perf:true},
  {k:'fullFrames',     label:'Full Frames',    unit:'',   perf:true},
  {k:'deltaFrames',    label:'Delta Frames',   unit:'',   perf:true},
  {k:'totalBytesSent', label:'Total Sent',     unit:'',   perf:true, fmt:fmtBytes},
  {k:'totalBytesRecv', label:'Total Received', unit:'',   perf:true, fmt:fmtBytes},
  {k:'memAllocMB',     label:'Heap Memory',    unit:'MB', perf:true},
  {k:'numGoroutines',  label:'Goroutines',     unit:'',   perf:true},
];
function render(d) {
  document.getElementById('uptime').textContent = d.uptime || d.state || '';
  document.getElementById('dot').className = 'dot' + (d.state === 'running' ? '' : ' stopped');
  if (d.version) document.getElementById('version').textContent = 'v' + d.version;
  let html = '';
  for (const c of cardDefs) {
    let v = d[c.k];
    if (v === undefined) v = '-';
    let valHtml = c.fmt ? c.fmt(v) : v+' <span class="unit">'+c.unit+'</span>';
    html += '<div class="card'+(c.perf?' perf':'')+'"><div class="label">'+c.label+'</div>'+
            '<div class="value">'+valHtml+'</div></div>';
  }
  document.getElementById('cards').innerHTML = html;
  let lb = '';
  if (d.leaderboard && d.leaderboard.length) {
    d.leaderboard.forEach(function(e, i) {
      let badge = e.bot ? '<span class="badge bot">Bot</span>' : '<span class="badge human">Player</span>';
      lb += '<tr><td>'+(i+1)+'</td><td>'+esc(e.name)+'</td><td>'+e.score+'</td><td>'+e.length+'</td><td>'+badge+'</td></tr>';
    });
  } else {
    lb = '<tr><td colspan="5" style="color:#556;text-align:center">Nobody in the arena</td></tr>';
  }
  document.getElementById('lb').innerHTML = lb;
  document.getElementById('digest').textContent = d.streamDigest ? 'stream ' + d.streamDigest : '';
  document.getElementById('status').textContent = 'Last update: ' + new Date().toLocaleTimeString();
}
function esc(s) { let d=document.createElement('div'); d.textContent=s; return d.innerHTML; }
function poll() {
  fetch('/stats').then(r=>r.json()).then(render)
    .catch(e=>{ document.getElementById('status').textContent='Error: '+e; });
}
poll();
setInterval(poll, 1000);
</script>
</body>
</html>`
