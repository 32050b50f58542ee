package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ericksa/contractassist/internal/audit"
	"github.com/ericksa/contractassist/internal/config"
	"github.com/ericksa/contractassist/internal/extract"
	"github.com/ericksa/contractassist/internal/llm"
	"github.com/ericksa/contractassist/internal/middleware"
	"github.com/ericksa/contractassist/internal/repair"
	"github.com/ericksa/contractassist/internal/storage"
	"github.com/ericksa/contractassist/internal/workers"
	"github.com/ericksa/contractassist/pkg/mcp"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxRawReply bounds the model reply echoed in error bodies.
const maxRawReply = 4096

type gateway struct {
	cfg       *config.Config
	logger    *zap.Logger
	contracts *workers.ContractWorker
	auditor   *audit.Auditor
	mcp       *mcp.Handler
	configAPI *config.ConfigAPI
}

func newGateway(cfg *config.Config, logger *zap.Logger, model llm.Client, store storage.Store, auditor *audit.Auditor) *gateway {
	contracts := workers.NewContractWorker(model, store,
		workers.WithAuditor(auditor),
		workers.WithLogger(logger.Named("contract")),
	)
	return &gateway{
		cfg:       cfg,
		logger:    logger,
		contracts: contracts,
		auditor:   auditor,
		mcp:       mcp.NewHandler(map[string]workers.Worker{"contract": contracts}, version, logger.Named("mcp")),
		configAPI: config.NewConfigAPI(cfg),
	}
}

func (g *gateway) router() *mux.Router {
	r := mux.NewRouter()
	middleware.Register(r, g.logger, nil)

	r.HandleFunc("/simulate_upload/", g.simulateUpload).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/identify_upload/", g.identifyUpload).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/suggestion/", g.suggestion).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/contracts", g.listContracts).Methods(http.MethodGet)
	r.HandleFunc("/contracts/{filename}", g.getContract).Methods(http.MethodGet)

	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/audit", g.auditHandler).Methods(http.MethodGet)
	r.HandleFunc("/tools", g.listToolsHandler).Methods(http.MethodGet)
	r.HandleFunc("/tools/{tool}", g.executeToolHandler).Methods(http.MethodPost)

	// MCP endpoint
	r.PathPrefix("/mcp").Handler(g.mcp)

	// Configuration API
	r.PathPrefix("/configure").Handler(g.configAPI.Router())
	return r
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, sc config.ServerConfig, h http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:         sc.Addr,
		Handler:      h,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		logger.Info("starting contract gateway", zap.String("addr", sc.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := grp.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readUpload returns the name and bytes of the multipart "file" field.
func (g *gateway) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, g.cfg.Server.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, badRequest("upload exceeds %d bytes", tooLarge.Limit)
		}
		return "", nil, badRequest("multipart field \"file\" is required: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, badRequest("failed to read upload: %v", err)
	}
	return header.Filename, data, nil
}

func (g *gateway) simulateUpload(w http.ResponseWriter, r *http.Request) {
	filename, data, err := g.readUpload(w, r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	up, err := g.contracts.Save(r.Context(), filename, data)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"mock_url":      g.contractURL(up.Name),
		"contract_type": string(up.Kind),
		"message":       "File uploaded successfully",
	})
}

func (g *gateway) identifyUpload(w http.ResponseWriter, r *http.Request) {
	filename, data, ok := g.storeUpload(w, r)
	if !ok {
		return
	}
	clauses, _, err := g.contracts.IdentifyClauses(r.Context(), r.URL.Path, filename, data)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clauses)
}

func (g *gateway) suggestion(w http.ResponseWriter, r *http.Request) {
	filename, data, ok := g.storeUpload(w, r)
	if !ok {
		return
	}
	suggestions, _, err := g.contracts.SuggestNegotiation(r.Context(), r.URL.Path, filename, data)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

// storeUpload reads and saves the upload. It writes the error response
// itself and reports false when the request cannot proceed.
func (g *gateway) storeUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	filename, data, err := g.readUpload(w, r)
	if err != nil {
		g.writeError(w, r, err)
		return "", nil, false
	}
	up, err := g.contracts.Save(r.Context(), filename, data)
	if err != nil {
		g.writeError(w, r, err)
		return "", nil, false
	}
	return up.Name, data, true
}

func (g *gateway) getContract(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	rc, err := g.contracts.Open(r.Context(), name)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	if _, err := io.Copy(w, rc); err != nil {
		g.logger.Warn("failed to stream contract", zap.String("filename", name), zap.Error(err))
	}
}

func (g *gateway) listContracts(w http.ResponseWriter, r *http.Request) {
	objects, err := g.contracts.List(r.Context())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contracts": objects,
		"count":     len(objects),
	})
}

func (g *gateway) auditHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			g.writeError(w, r, badRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}
	entries, err := g.auditor.Recent(r.Context(), limit)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (g *gateway) listToolsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": g.mcp.Tools()})
}

func (g *gateway) executeToolHandler(w http.ResponseWriter, r *http.Request) {
	toolName := mux.Vars(r)["tool"]

	var args map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		g.writeError(w, r, badRequest("invalid tool arguments: %v", err))
		return
	}
	argsJSON, _ := json.Marshal(args)

	result, err := g.mcp.ExecuteTool(r.Context(), toolName, argsJSON)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(result)
}

func (g *gateway) contractURL(name string) string {
	return strings.TrimRight(g.cfg.Server.PublicBaseURL, "/") + "/contracts/" + url.PathEscape(name)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Raw   string `json:"raw,omitempty"`
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr), errors.Is(err, storage.ErrInvalidName), errors.Is(err, workers.ErrInvalidToolInput):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported_format"
	case errors.Is(err, extract.ErrCorruptDocument):
		return http.StatusBadRequest, "corrupt_document"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, workers.ErrUnknownTool):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, llm.ErrModelQuotaExceeded):
		return http.StatusInternalServerError, "model_quota_exceeded"
	case errors.Is(err, llm.ErrModelUnavailable):
		return http.StatusInternalServerError, "model_unavailable"
	case errors.Is(err, repair.ErrUnrecoverableFormat):
		return http.StatusInternalServerError, "unrecoverable_format"
	}
	return http.StatusInternalServerError, "internal"
}

func (g *gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	body := errorBody{Error: err.Error(), Code: code}

	var fe *repair.FormatError
	if g.cfg.Server.ExposeRawReply && errors.As(err, &fe) {
		body.Raw = truncateUTF8(fe.Raw, maxRawReply)
	}
	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed",
			zap.String("uri", r.RequestURI),
			zap.String("code", code),
			zap.String("request_id", middleware.RequestIDFrom(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
