package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
)

const redacted = "***"

// ConfigAPI exposes the running configuration with secrets redacted.
// The configuration is read-only over HTTP; candidate configurations can be
// checked with the validate endpoint before they are deployed.
type ConfigAPI struct {
	cfg    *Config
	mu     sync.RWMutex
	router *mux.Router
}

func NewConfigAPI(cfg *Config) *ConfigAPI {
	api := &ConfigAPI{
		cfg:    cfg,
		router: mux.NewRouter(),
	}
	api.routes()
	return api
}

func (api *ConfigAPI) Router() *mux.Router {
	return api.router
}

func (api *ConfigAPI) routes() {
	api.router.HandleFunc("/configure", api.getConfig).Methods("GET")
	api.router.HandleFunc("/configure/", api.getConfig).Methods("GET")
	api.router.HandleFunc("/configure/validate", api.validateConfig).Methods("POST")
	api.router.HandleFunc("/configure/{section}", api.getSection).Methods("GET")
}

// SetLogLevel records a level change applied at runtime so the API reports it.
func (api *ConfigAPI) SetLogLevel(level string) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.cfg.Log.Level = level
}

func (api *ConfigAPI) getConfig(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	defer api.mu.RUnlock()
	writeJSON(w, http.StatusOK, Redacted(api.cfg))
}

func (api *ConfigAPI) validateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("invalid configuration: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "message": "configuration is valid"})
}

func (api *ConfigAPI) getSection(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	defer api.mu.RUnlock()

	safe := Redacted(api.cfg)
	section := mux.Vars(r)["section"]
	var out interface{}

	switch section {
	case "server":
		out = safe.Server
	case "log":
		out = safe.Log
	case "llm":
		out = safe.LLM
	case "storage":
		out = safe.Storage
	case "audit":
		out = safe.Audit
	default:
		http.Error(w, fmt.Sprintf("unknown config section: %s", section), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Redacted returns a copy of cfg with credentials masked.
func Redacted(cfg *Config) *Config {
	c := *cfg
	if c.LLM.APIKey != "" {
		c.LLM.APIKey = redacted
	}
	if c.Storage.MinIO.AccessKey != "" {
		c.Storage.MinIO.AccessKey = redacted
	}
	if c.Storage.MinIO.SecretKey != "" {
		c.Storage.MinIO.SecretKey = redacted
	}
	return &c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
