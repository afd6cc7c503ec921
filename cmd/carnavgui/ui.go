package main

// htmlContent hosts the map in an iframe once the server answers /health.
// Until then the server log is shown. Go talks to it through the window.*
// functions at the bottom; it reports the map area size through reportSize.
const htmlContent = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>carnav</title>
<style>
  html, body { margin: 0; height: 100%; background: #111418; color: #d8dde3; font: 13px system-ui, sans-serif; }
  body { display: grid; grid-template-rows: 28px 1fr; overflow: hidden; }
  nav { display: flex; gap: 4px; align-items: stretch; padding: 0 6px; background: #1b2027; }
  nav button { background: none; border: 0; color: #7d8793; padding: 0 12px; font: inherit; letter-spacing: .05em; cursor: pointer; }
  nav button[aria-selected="true"] { color: #fff; box-shadow: inset 0 -2px #3d8bfd; }
  nav button:disabled { opacity: .4; cursor: default; }
  nav .state { margin-left: auto; align-self: center; font-size: 11px; color: #7d8793; }
  nav .state.up { color: #4cc38a; }
  main > section { display: none; height: 100%; }
  main > section.shown { display: block; }
  #log { box-sizing: border-box; height: 100%; margin: 0; padding: 10px; overflow-y: auto; font: 12px ui-monospace, Menlo, Consolas, monospace; white-space: pre-wrap; background: #0b0d10; }
  #log .INFO { color: #4cc38a; }
  #log .WARN { color: #f0a33a; }
  #log .ERROR { color: #ef5350; }
  #log .shell { color: #6cb6ff; }
  iframe { width: 100%; height: 100%; border: 0; }
</style>
</head>
<body>
<nav>
  <button id="btn-map" disabled onclick="show('map')">MAP</button>
  <button id="btn-log" aria-selected="true" onclick="show('log')">SERVER</button>
  <span id="state" class="state">starting</span>
</nav>
<main>
  <section id="map"><iframe id="frame"></iframe></section>
  <section id="log" class="shown"></section>
</main>
<script>
  const maxLines = 2000;
  const log = document.getElementById('log');

  function show(id) {
    for (const s of document.querySelectorAll('main > section')) s.classList.toggle('shown', s.id === id);
    for (const b of document.querySelectorAll('nav button')) b.setAttribute('aria-selected', b.id === 'btn-' + id);
  }

  function levelOf(text) {
    if (text.startsWith('>')) return 'shell';
    const m = text.match(/level=(\w+)/);
    return m ? m[1] : '';
  }

  window.addLogLine = function (text) {
    const row = document.createElement('div');
    row.className = levelOf(text);
    row.textContent = text;
    log.appendChild(row);
    while (log.childElementCount > maxLines) log.firstElementChild.remove();
    log.scrollTop = log.scrollHeight;
  };

  window.setTerminalTitle = function (name) {
    document.getElementById('btn-log').textContent = name.toUpperCase();
  };

  // Debounced; reportSize is bound by the Go side.
  let sizeTimer;
  const mapArea = document.getElementById('map');
  new ResizeObserver(() => {
    clearTimeout(sizeTimer);
    sizeTimer = setTimeout(() => {
      const w = Math.round(mapArea.clientWidth), h = Math.round(mapArea.clientHeight);
      if (w > 0 && h > 0 && window.reportSize) window.reportSize(w, h);
    }, 250);
  }).observe(mapArea);

  window.enableApp = function (url) {
    document.getElementById('frame').src = url;
    document.getElementById('btn-map').disabled = false;
    const st = document.getElementById('state');
    st.textContent = 'connected';
    st.classList.add('up');
    show('map');
  };

  // A head unit has no use for reload or the context menu.
  document.addEventListener('contextmenu', e => e.preventDefault());
  document.addEventListener('keydown', e => {
    if (e.key === 'F5' || (e.ctrlKey && e.key === 'r')) e.preventDefault();
  });
</script>
</body>
</html>
`
