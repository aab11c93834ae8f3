// Package server exposes the retrieval pipeline over HTTP and WebSocket.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/joliv/mira/pkg/engine"
	"github.com/joliv/mira/pkg/ingest"
)

const maxUploadBytes = 32 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is one WebSocket frame in either direction.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type Server struct {
	engine   *engine.Engine
	pipeline *ingest.Pipeline
}

func New(eng *engine.Engine, pipeline *ingest.Pipeline) *Server {
	return &Server{
		engine:   eng,
		pipeline: pipeline,
	}
}

// Routes wires every endpoint onto a fresh mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/answer", s.handleAnswer)
	mux.HandleFunc("/add", s.handleAdd)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := s.engine.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		log.Printf("server: search failed: %v", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	// Generation failures surface inside the payload, so the status here is
	// 200 unless retrieval itself broke.
	result, err := s.engine.Answer(r.Context(), req.Query, req.TopK)
	if err != nil {
		log.Printf("server: answer failed: %v", err)
		writeError(w, http.StatusInternalServerError, "answer failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	req := ingest.AddRequest{
		Text:      r.FormValue("text"),
		Title:     r.FormValue("title"),
		SourceURL: r.FormValue("source_url"),
		Tags:      r.FormValue("tags"),
	}

	if data, name, ok := readFormFile(r, "image_file"); ok {
		req.Image = data
		req.ImageName = name
	}
	if data, name, ok := readFormFile(r, "pdf_file"); ok {
		req.PDF = data
		req.PDFName = name
	}

	result, err := s.pipeline.AddDocument(r.Context(), req)
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("server: add failed: %v", err)
		writeError(w, http.StatusInternalServerError, "add failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}

		s.handleMessage(r, conn, msg)
	}
}

func (s *Server) handleMessage(r *http.Request, conn *websocket.Conn, msg Message) {
	if msg.Type != "ask" {
		s.sendMessage(conn, "error", fmt.Sprintf("unknown message type: %s", msg.Type))
		return
	}

	s.sendMessage(conn, "status", "Searching...")

	result, err := s.engine.Answer(r.Context(), msg.Content, 0)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Error: %v", err))
		return
	}

	if result.Error != "" {
		s.sendMessage(conn, "error", result.Error)
		return
	}

	reply := Message{Type: "answer", Content: result.Answer, Data: result}
	if err := conn.WriteJSON(reply); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType string, content string) {
	msg := Message{
		Type:    msgType,
		Content: content,
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return req, false
	}
	return req, true
}

func readFormFile(r *http.Request, field string) ([]byte, string, bool) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		return nil, "", false
	}
	return data, header.Filename, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("server: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
