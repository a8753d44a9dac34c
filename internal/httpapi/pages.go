package httpapi

import (
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/blacksmithgu/amadeus/internal/game"
)

// Minimal server-rendered pages. The real client is the room page's script,
// which speaks the websocket protocol directly.

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Amadeus</title></head>
<body>
<h1>Amadeus</h1>
<p>Pick a name to start guessing songs.</p>
<form method="post" action="/register">
  <input name="name" maxlength="50" placeholder="display name" autofocus>
  <button type="submit">Play</button>
</form>
</body>
</html>
`))

var roomsTmpl = template.Must(template.New("rooms").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Amadeus - Rooms</title></head>
<body>
<h1>Rooms</h1>
<form method="get" onsubmit="location.href='/room/'+encodeURIComponent(this.room.value);return false">
  <input name="room" placeholder="room name">
  <button type="submit">Join or create</button>
</form>
{{if .}}
<ul>
{{range .}}
  <li><a href="/room/{{.ID}}">{{.ID}}</a> - {{.Phase}} ({{.Connected}}/{{.MaxPlayers}} players)</li>
{{end}}
</ul>
{{else}}
<p>No rooms yet.</p>
{{end}}
</body>
</html>
`))

var roomTmpl = template.Must(template.New("room").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Amadeus - {{.}}</title></head>
<body>
<h1>Room {{.}}</h1>
<p><img src="/room/{{.}}/qr" alt="share" width="160" height="160"></p>
<pre id="log"></pre>
<script>
const log = document.getElementById("log");
const proto = location.protocol === "https:" ? "wss" : "ws";
const sock = new WebSocket(proto + "://" + location.host + location.pathname);
sock.binaryType = "arraybuffer";
let pendingRound = null;
let audio = null;
sock.onmessage = (ev) => {
  if (typeof ev.data !== "string") {
    if (audio) { audio.pause(); }
    audio = new Audio(URL.createObjectURL(new Blob([ev.data], {type: "audio/mpeg"})));
    audio.oncanplaythrough = () => {
      if (pendingRound !== null) {
        sock.send(JSON.stringify({type: "BUFFER_COMPLETE", round: pendingRound}));
      }
    };
    return;
  }
  const msg = JSON.parse(ev.data);
  log.textContent += ev.data + "\n";
  if (msg.type === "SONG_DATA") { pendingRound = msg.round; }
  if (msg.type === "ROOM_STATE" && msg.state) {
    if (msg.state.state === "PLAYING" && audio && audio.paused) { audio.play(); }
    if (msg.state.state !== "PLAYING" && audio) { audio.pause(); }
  }
};
window.start = () => sock.send(JSON.stringify({type: "START"}));
window.next = () => sock.send(JSON.stringify({type: "NEXT"}));
window.guess = (round, text) => sock.send(JSON.stringify({type: "GUESS", round: round, guess: text}));
</script>
<p>
  <button onclick="start()">Start</button>
  <button onclick="next()">Next</button>
  <input id="g" placeholder="your guess">
  <button onclick="guess(pendingRound, document.getElementById('g').value)">Guess</button>
</p>
</body>
</html>
`))

func renderIndex(c echo.Context) error {
	return renderHTML(c, indexTmpl, nil)
}

func renderRooms(c echo.Context, listings []game.RoomListing) error {
	return renderHTML(c, roomsTmpl, listings)
}

func renderRoom(c echo.Context, id string) error {
	return renderHTML(c, roomTmpl, id)
}

func renderHTML(c echo.Context, tmpl *template.Template, data any) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return tmpl.Execute(c.Response().Writer, data)
}
