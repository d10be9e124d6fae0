// Package gateway exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package gateway

import (
	"fmt"
	"net/http"
)

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, dials the relay, upgrades the HTTP connection
// and registers a Session whose pumps bridge the two connections.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	relay, err := g.dialer.DialContext(r.Context(), "tcp", g.cfg.RelayAddr)
	if err != nil {
		g.logger.Warn("Relay unavailable", "relay", g.cfg.RelayAddr, "error", err)
		http.Error(w, "Chat relay unavailable", http.StatusBadGateway)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		g.logger.Info("WebSocket upgrade failed", "error", err)
		_ = relay.Close()
		return
	}

	session := newSession(conn, relay, g, r.RemoteAddr)
	if err := g.sessions.start(session); err != nil {
		g.logger.Info("Rejecting session", "addr", r.RemoteAddr, "error", err)
		session.close()
	}
}

// HealthHandler reports that the gateway is up.
func (g *Gateway) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "linechat gateway is running! sessions=%d\n", g.sessions.Count())
}

// TestPageHandler serves an HTML page for trying the gateway from a browser.
func (g *Gateway) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		g.logger.Warn("Error writing HTML response", "error", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>linechat gateway test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>linechat gateway test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a line..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addMessage(text, type = 'info') {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.textContent = (type === 'sent' ? 'You: ' : type === 'received' ? 'Peer: ' : '') + text;
            el.style.color = type === 'sent' ? 'blue' : type === 'received' ? 'green' : 'gray';
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => { addMessage('Connected to relay'); updateStatus(true); };
            ws.onmessage = (event) => {
                try {
                    addMessage(JSON.parse(event.data).content, 'received');
                } catch (e) {
                    addMessage('Malformed message: ' + event.data);
                }
            };
            ws.onclose = () => { addMessage('Connection closed'); updateStatus(false); ws = null; };
            ws.onerror = () => { addMessage('Connection error'); updateStatus(false); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ content: text }));
                addMessage(text, 'sent');
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', (e) => {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
