package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"impactboard/api/internal/authpw"
	"impactboard/api/internal/blob"
	"impactboard/api/internal/export"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/fetch-scoreboard" {
		programName := strings.TrimSpace(r.URL.Query().Get("programName"))
		payload, err := s.service.FetchScoreboard(r.Context(), programName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/fetch-initiative" {
		programName := strings.TrimSpace(r.URL.Query().Get("programName"))
		initiativeName := strings.TrimSpace(r.URL.Query().Get("initiativeName"))
		payload, err := s.service.FetchInitiative(r.Context(), programName, initiativeName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/search-initiatives" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		programName := strings.TrimSpace(r.URL.Query().Get("programName"))
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		offset := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be an integer", nil)
				return
			}
			offset = parsed
		}

		payload, err := s.service.SearchInitiatives(r.Context(), q, programName, limit, offset)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/initiative-history" {
		programName := strings.TrimSpace(r.URL.Query().Get("programName"))
		initiativeName := strings.TrimSpace(r.URL.Query().Get("initiativeName"))
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		items, err := s.service.InitiativeHistory(r.Context(), programName, initiativeName, limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": items})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/export-scoreboard" {
		programName := strings.TrimSpace(r.URL.Query().Get("programName"))
		format := export.Format(strings.TrimSpace(r.URL.Query().Get("format")))
		if format == "" {
			format = export.FormatCSV
		}
		result, err := s.service.ExportScoreboard(r.Context(), programName, format)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.Write(result.Data)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/add-initiative" {
		in, err := parseInitiativeForm(r)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if err := s.service.CreateInitiative(r.Context(), in); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Initiative created successfully"})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/edit-initiative" {
		in, err := parseInitiativeForm(r)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if err := s.service.EditInitiative(r.Context(), in); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Initiative updated successfully"})
		return
	}

	if r.Method == http.MethodDelete && r.URL.Path == "/delete-initiative" {
		var body struct {
			ProgramName    string `json:"programName"`
			InitiativeName string `json:"initiativeName"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.DeleteInitiative(r.Context(), body.ProgramName, body.InitiativeName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Initiative deleted successfully"})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/set-program-password" {
		var body struct {
			ProgramID int64  `json:"programId"`
			Password  string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SetProgramPassword(r.Context(), body.ProgramID, body.Password); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/program-login" {
		var body struct {
			ProgramID int64  `json:"programId"`
			Password  string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		token, err := s.service.ProgramLogin(r.Context(), body.ProgramID, body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		response := map[string]any{"success": true}
		if token != "" {
			response["token"] = token
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/program-logout" {
		var body struct {
			Token string `json:"token"`
		}
		_ = decodeBody(r, &body)
		if body.Token == "" {
			body.Token = bearerToken(r)
		}
		s.service.ProgramLogout(r.Context(), body.Token)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// parseInitiativeForm reads a multipart add/edit request: text fields,
// JSON-encoded modesOfAction and metrics fields, and an optional image
// part. All parsing failures surface before any side effect runs.
func parseInitiativeForm(r *http.Request) (InitiativeInput, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, blob.MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(blob.MaxImageBytes); err != nil {
		return InitiativeInput{}, validationError("request body must be multipart/form-data")
	}

	in := InitiativeInput{
		ProgramName:    strings.TrimSpace(r.FormValue("programName")),
		InitiativeName: strings.TrimSpace(r.FormValue("initiativeName")),
		Description:    strings.TrimSpace(r.FormValue("description")),
	}

	if raw := r.FormValue("modesOfAction"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.ModesOfAction); err != nil {
			return InitiativeInput{}, validationError("modesOfAction must be a JSON array of strings")
		}
	}
	if raw := r.FormValue("metrics"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Metrics); err != nil {
			return InitiativeInput{}, validationError("metrics must be a JSON object keyed by category")
		}
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return InitiativeInput{}, validationError("could not read image upload")
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !blob.AllowedImageType(mimeType) {
		return InitiativeInput{}, validationError(fmt.Sprintf("unsupported image type %q", mimeType))
	}
	if header.Size > blob.MaxImageBytes {
		return InitiativeInput{}, validationError("image exceeds the 5MB size limit")
	}

	data, err := io.ReadAll(io.LimitReader(file, blob.MaxImageBytes+1))
	if err != nil {
		return InitiativeInput{}, validationError("could not read image upload")
	}
	if len(data) > blob.MaxImageBytes {
		return InitiativeInput{}, validationError("image exceeds the 5MB size limit")
	}

	in.Image = &ImageUpload{
		Filename: header.Filename,
		MimeType: mimeType,
		Data:     data,
	}
	return in, nil
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
