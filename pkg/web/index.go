package web

// Minimal viewer: renders broadcast RGBA frames to a canvas and sends
// keyboard state back as JSON button messages.
const indexPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>dmgemu</title>
<style>
body { background: #222; margin: 0; display: flex; justify-content: center; align-items: center; height: 100vh; }
canvas { image-rendering: pixelated; width: 480px; height: 432px; }
</style>
</head>
<body>
<canvas id="screen" width="160" height="144"></canvas>
<script>
const canvas = document.getElementById("screen");
const ctx = canvas.getContext("2d");
const img = ctx.createImageData(160, 144);
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.binaryType = "arraybuffer";
ws.onmessage = (ev) => {
	img.data.set(new Uint8Array(ev.data));
	ctx.putImageData(img, 0, 0);
};
const state = {right:false,left:false,up:false,down:false,a:false,b:false,select:false,start:false};
const keys = {ArrowRight:"right",ArrowLeft:"left",ArrowUp:"up",ArrowDown:"down",KeyZ:"a",KeyX:"b",Backspace:"select",Enter:"start"};
function setKey(ev, down) {
	const btn = keys[ev.code];
	if (!btn || state[btn] === down) return;
	state[btn] = down;
	if (ws.readyState === WebSocket.OPEN) ws.send(JSON.stringify(state));
	ev.preventDefault();
}
window.addEventListener("keydown", (ev) => setKey(ev, true));
window.addEventListener("keyup", (ev) => setKey(ev, false));
</script>
</body>
</html>
`
