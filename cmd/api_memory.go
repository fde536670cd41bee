package cmd

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jrhatch/mnemo/pkg/embedding"
	"github.com/jrhatch/mnemo/pkg/memory"
)

// MemoryAPI handles the HTTP endpoints of the memory layer.
type MemoryAPI struct {
	facade *memory.Facade
}

// RegisterRoutes adds all endpoints to the given mux, wrapping each handler
// with the instrumentation middleware.
func (m *MemoryAPI) RegisterRoutes(mux *http.ServeMux, mw func(string, http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/v1/messages", mw("/v1/messages", m.handleMessages))
	mux.HandleFunc("/v1/history", mw("/v1/history", m.handleHistory))
	mux.HandleFunc("/v1/conversations", mw("/v1/conversations", m.handleConversations))
	mux.HandleFunc("/v1/search", mw("/v1/search", m.handleSearch))
	mux.HandleFunc("/v1/context", mw("/v1/context", m.handleContext))
	mux.HandleFunc("/v1/stats", mw("/v1/stats", m.handleStats))
	mux.HandleFunc("/v1/tier", mw("/v1/tier", m.handleTier))
	mux.HandleFunc("/v1/tier/upgrade", mw("/v1/tier/upgrade", m.handleTierUpgrade))
	mux.HandleFunc("/v1/tier/downgrade", mw("/v1/tier/downgrade", m.handleTierDowngrade))
	mux.HandleFunc("/v1/profile", mw("/v1/profile", m.handleProfile))
	mux.HandleFunc("/v1/profile/facts", mw("/v1/profile/facts", m.handleProfileFacts))
}

func (m *MemoryAPI) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ConversationID string `json:"conversation_id"`
		Role           string `json:"role"`
		Content        string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := m.facade.StoreMessage(r.Context(), req.ConversationID, memory.Role(req.Role), req.Content)
	if err != nil {
		if errors.Is(err, memory.ErrInvalidRole) || errors.Is(err, memory.ErrEmptyContent) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

func (m *MemoryAPI) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		writeJSONError(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	messages, err := m.facade.ConversationHistory(r.Context(), conversationID)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, messages)
}

func (m *MemoryAPI) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summaries, err := m.facade.Summaries(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, summaries)
}

func (m *MemoryAPI) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	matches, err := m.facade.SearchAllConversations(r.Context(), req.Query, req.Limit)
	if err != nil {
		if errors.Is(err, memory.ErrInvalidQuery) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, embedding.ErrUnavailable) {
			writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, matches)
}

func (m *MemoryAPI) handleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Query          string `json:"query"`
		ConversationID string `json:"conversation_id"`
		Recent         int    `json:"recent"`
		Relevant       int    `json:"relevant"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Recent == 0 {
		req.Recent = 10
	}
	if req.Relevant == 0 {
		req.Relevant = 8
	}

	composed, err := m.facade.Compose(r.Context(), req.Query, req.ConversationID, req.Recent, req.Relevant)
	if err != nil {
		if errors.Is(err, memory.ErrInvalidQuery) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, composed)
}

func (m *MemoryAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := m.facade.Statistics(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, stats)
}

func (m *MemoryAPI) handleTier(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, err := m.facade.CurrentTier(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, cfg)
}

func (m *MemoryAPI) handleTierUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, err := m.facade.UpgradeToPaid(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, cfg)
}

func (m *MemoryAPI) handleTierDowngrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	evicted, err := m.facade.DowngradeToFree(r.Context(), req.Confirmed)
	if err != nil {
		if errors.Is(err, memory.ErrDowngradeNotConfirmed) {
			writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]int{"evicted": evicted})
}

func (m *MemoryAPI) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		prof, err := m.facade.Profile(r.Context())
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, prof)

	case http.MethodPost:
		var req struct {
			Name         string `json:"name"`
			Role         string `json:"role"`
			Organization string `json:"organization"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := m.facade.SetUserIdentity(r.Context(), req.Name, req.Role, req.Organization); err != nil {
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m *MemoryAPI) handleProfileFacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Fact string `json:"fact"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := m.facade.AddUserFact(r.Context(), req.Fact); err != nil {
		if errors.Is(err, memory.ErrEmptyFact) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
