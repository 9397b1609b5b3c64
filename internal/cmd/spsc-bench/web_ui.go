package main

import (
	"embed"
	"html/template"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

//go:embed web/*
var webFiles embed.FS

var indexTmpl = template.Must(template.ParseFS(webFiles, "web/index.html"))

type WebUI struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
	mu       sync.Mutex
	logger   *zerolog.Logger
}

func NewWebUI(logger *zerolog.Logger) *WebUI {
	return &WebUI{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local dashboard
			},
		},
		clients: make(map[*websocket.Conn]bool),
		logger:  logger,
	}
}

func (ui *WebUI) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ui.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ui.logger.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	ui.mu.Lock()
	ui.clients[conn] = true
	ui.mu.Unlock()

	defer func() {
		ui.mu.Lock()
		delete(ui.clients, conn)
		ui.mu.Unlock()
		conn.Close()
	}()

	// reads only detect the client going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (ui *WebUI) broadcastStats(s *Snapshot) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	for client := range ui.clients {
		if err := client.WriteJSON(s); err != nil {
			ui.logger.Warn().Err(err).Msg("Failed to send stats to client")
			client.Close()
			delete(ui.clients, client)
		}
	}
}

func (ui *WebUI) closeAll() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	for client := range ui.clients {
		client.Close()
		delete(ui.clients, client)
	}
}

func (ui *WebUI) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if err := indexTmpl.Execute(w, nil); err != nil {
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
	}
}
