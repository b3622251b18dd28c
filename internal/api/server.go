package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"instagram-dispatcher/internal/storage"
)

type Server struct {
	db     *storage.DB
	logger *logrus.Logger
	port   string
}

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Count   int         `json:"count,omitempty"`
}

func NewServer(db *storage.DB, logger *logrus.Logger, port string) *Server {
	return &Server{
		db:     db,
		logger: logger,
		port:   port,
	}
}

func (s *Server) Start() error {
	s.setupRoutes()
	s.logger.Infof("Starting API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, nil)
}

func (s *Server) setupRoutes() {
	// Enable CORS
	http.HandleFunc("/", s.corsMiddleware(s.handleRoot))
	http.HandleFunc("/api/profiles", s.corsMiddleware(s.handleProfiles))
	http.HandleFunc("/api/profiles/", s.corsMiddleware(s.handleProfilePosts))
	http.HandleFunc("/api/stats", s.corsMiddleware(s.handleStats))
	http.HandleFunc("/api/export/csv", s.corsMiddleware(s.handleExportCSV))
	http.HandleFunc("/api/health", s.corsMiddleware(s.handleHealth))
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	response := APIResponse{
		Success: true,
		Data: map[string]string{
			"message":   "Account Action Dispatcher API",
			"version":   "1.0.0",
			"endpoints": "/api/profiles, /api/profiles/{username}/posts, /api/stats, /api/export/csv, /api/health",
		},
	}
	s.writeJSON(w, response)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	profiles, err := s.db.GetProfiles(limit)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to fetch profiles: %v", err), http.StatusInternalServerError)
		return
	}

	response := APIResponse{
		Success: true,
		Data:    profiles,
		Count:   len(profiles),
	}

	s.writeJSON(w, response)
}

func (s *Server) handleProfilePosts(w http.ResponseWriter, r *http.Request) {
	// Path shape: /api/profiles/{username}/posts
	rest := strings.TrimPrefix(r.URL.Path, "/api/profiles/")
	username := strings.TrimSuffix(rest, "/posts")
	if username == "" || username == rest {
		s.writeError(w, "Username is required", http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	posts, err := s.db.GetPostsByUsername(username, limit)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to fetch posts for profile: %v", err), http.StatusInternalServerError)
		return
	}

	response := APIResponse{
		Success: true,
		Data:    posts,
		Count:   len(posts),
	}

	s.writeJSON(w, response)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to fetch stats: %v", err), http.StatusInternalServerError)
		return
	}

	response := APIResponse{
		Success: true,
		Data:    stats,
	}

	s.writeJSON(w, response)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 1000
	}

	actions, err := s.db.GetActionsForExport(limit)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to fetch actions for export: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=dispatch_actions_%s.csv", time.Now().Format("2006-01-02")))

	// Write CSV header
	w.Write([]byte("Target,Mode,Backend,Proxy,Error,Duration (ms),Scraped At\n"))

	// Write CSV data
	for _, action := range actions {
		errText := fmt.Sprintf("\"%s\"", strings.ReplaceAll(action.Error, "\"", "\"\""))
		line := fmt.Sprintf("%s,%s,%s,%s,%s,%d,%s\n",
			action.Target,
			action.Mode,
			action.Backend,
			action.Proxy,
			errText,
			action.DurationMS,
			action.ScrapedAt.Format("2006-01-02 15:04:05"),
		)
		w.Write([]byte(line))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Check database connection
	if err := s.db.Ping(); err != nil {
		s.writeError(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	response := APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"database":  "connected",
		},
	}

	s.writeJSON(w, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := APIResponse{
		Success: false,
		Error:   message,
	}
	json.NewEncoder(w).Encode(response)
}
