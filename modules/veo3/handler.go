package veo3

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"veo-studio-server/modules/common/credential"
	"veo-studio-server/modules/common/fallback"
	"veo-studio-server/modules/common/utils"
)

//go:embed static/index.html
var indexHTML []byte

const (
	maxUploadBytes    = 20 << 20
	imagePreviewChars = 32
)

type Veo3Handler struct {
	studio *Studio
	store  *credential.Store
}

func NewVeo3Handler(studio *Studio, store *credential.Store) *Veo3Handler {
	return &Veo3Handler{
		studio: studio,
		store:  store,
	}
}

// RegisterRoutes - 라우트 등록
func (h *Veo3Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.ServeIndex).Methods("GET")
	r.HandleFunc("/api/generate", h.GenerateVideo).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/attempt", h.GetAttempt).Methods("GET")
	r.HandleFunc("/api/video", h.DownloadVideo).Methods("GET")
	r.HandleFunc("/api/credential", h.SetCredential).Methods("POST", "OPTIONS")
	log.Println("✅ [Veo] Routes registered: /, /api/generate, /api/attempt, /api/video, /api/credential")
}

// ServeIndex serves the single-page studio UI.
func (h *Veo3Handler) ServeIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// GenerateVideo handles multipart generation requests and starts an attempt.
func (h *Veo3Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in := Input{
		Prompt: r.FormValue("prompt"),
		Output: OutputConfig{
			AspectRatio:     fallback.SafeAspectRatio(r.FormValue("aspectRatio")),
			DurationSeconds: fallback.SafeDuration(r.FormValue("duration")),
			Resolution:      fallback.SafeResolution(r.FormValue("resolution")),
		},
	}

	if err := in.Output.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	image, err := readReferenceImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Image = image

	attemptID, err := h.studio.Start(r.Context(), in)
	switch {
	case errors.Is(err, ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, "Please enter a prompt.")
		return
	case errors.Is(err, ErrAttemptInProgress):
		writeError(w, http.StatusConflict, "A video is already being generated. Please wait for it to finish.")
		return
	case err != nil:
		log.Printf("❌ [Veo] Failed to start attempt: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to start generation: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"attemptId": attemptID,
		"status":    string(StateRunning),
	})
}

// readReferenceImage - 선택적 이미지 업로드 처리 (없으면 nil)
func readReferenceImage(r *http.Request) (*utils.ReferenceImage, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid image upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read image upload: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	log.Printf("📎 [Veo] Reference image uploaded: %s (%d bytes, preview: %s)",
		header.Filename, len(data), utils.Base64Preview(data, imagePreviewChars))
	return utils.NormalizeReferenceImage(data)
}

// GetAttempt returns the current attempt snapshot.
func (h *Veo3Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.studio.Attempt())
}

// DownloadVideo streams the current video; ?inline=1 serves it for the preview element.
func (h *Veo3Handler) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	video, err := h.studio.Video()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	disposition := `attachment; filename="veo-video.mp4"`
	if r.URL.Query().Get("inline") == "1" {
		disposition = "inline"
	}

	w.Header().Set("Content-Type", video.MIMEType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(video.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(video.Data)
}

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

// SetCredential stores an API key chosen on the page without going through the websocket prompt.
func (h *Veo3Handler) SetCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		writeError(w, http.StatusBadRequest, "apiKey is required")
		return
	}
	h.store.Set(req.APIKey)

	log.Printf("🔑 [Veo] API key updated via HTTP")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ [Veo] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
