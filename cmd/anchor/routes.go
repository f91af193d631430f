package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anchorhq/anchor/internal/pipeline"
	"github.com/anchorhq/anchor/internal/stt"
)

type deps struct {
	pipe          *pipeline.Pipeline
	transcriber   stt.Transcriber
	wsHandler     http.Handler
	maxAudioBytes int
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/session", d.wsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("POST /v1/sessions", d.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{session_id}/timing", d.handleTiming)
	mux.HandleFunc("POST /v1/sessions/{session_id}/end", d.handleEndSession)
	mux.HandleFunc("POST /v1/sessions/{session_id}/turns/start", d.handleStartTurn)
	mux.HandleFunc("POST /v1/sessions/{session_id}/turns/{turn_id}/chunks", d.handleAppendChunk)
	mux.HandleFunc("POST /v1/sessions/{session_id}/turns/{turn_id}/finalize", d.handleFinalize)
	mux.HandleFunc("POST /v1/sessions/{session_id}/turns/ingest", d.handleIngest)
	mux.HandleFunc("POST /v1/sessions/{session_id}/turns/audio", d.handleAudio)
	mux.HandleFunc("GET /v1/sessions/{session_id}/trends/daily", d.handleDailyTrends)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps pipeline sentinels to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, pipeline.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (d deps) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	info, err := d.pipe.CreateSession(r.Context(), req.Tier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (d deps) handleTiming(w http.ResponseWriter, r *http.Request) {
	timing, err := d.pipe.GetTiming(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timing)
}

func (d deps) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := d.pipe.EndSession(r.Context(), r.PathValue("session_id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (d deps) handleStartTurn(w http.ResponseWriter, r *http.Request) {
	turn, err := d.pipe.StartTurn(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, turn)
}

func (d deps) handleAppendChunk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChunkIndex int      `json:"chunk_index"`
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	seq, err := d.pipe.AppendChunk(r.Context(), r.PathValue("session_id"), r.PathValue("turn_id"), req.ChunkIndex, req.Text, req.Confidence)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"seq": seq})
}

func (d deps) handleFinalize(w http.ResponseWriter, r *http.Request) {
	res, err := d.pipe.FinalizeTurn(r.Context(), r.PathValue("session_id"), r.PathValue("turn_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (d deps) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TranscriptText       string   `json:"transcript_text"`
		TranscriptConfidence *float64 `json:"transcript_confidence"`
		DurationMs           *int     `json:"duration_ms"`
		SpeechRate           *float64 `json:"speech_rate"`
		PauseRatio           *float64 `json:"pause_ratio"`
		STTProvider          string   `json:"stt_provider"`
		FallbackUsed         bool     `json:"fallback_used"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	res, err := d.pipe.IngestTranscript(r.Context(), pipeline.IngestRequest{
		SessionID:            r.PathValue("session_id"),
		Transcript:           req.TranscriptText,
		TranscriptConfidence: req.TranscriptConfidence,
		DurationMs:           req.DurationMs,
		SpeechRate:           req.SpeechRate,
		PauseRatio:           req.PauseRatio,
		STTProvider:          req.STTProvider,
		FallbackUsed:         req.FallbackUsed,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAudio transcribes an uploaded clip through the self-hosted STT
// bridge and runs it as a single-payload turn.
func (d deps) handleAudio(w http.ResponseWriter, r *http.Request) {
	if d.transcriber == nil {
		http.Error(w, "stt not configured", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(d.maxAudioBytes))
	if err := r.ParseMultipartForm(int64(d.maxAudioBytes)); err != nil {
		http.Error(w, "bad upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file part required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read upload", http.StatusBadRequest)
		return
	}

	tr, err := d.transcriber.Transcribe(r.Context(), audio, header.Filename)
	if err != nil {
		slog.Error("stt transcribe", "error", err)
		http.Error(w, "transcription unavailable", http.StatusBadGateway)
		return
	}

	res, err := d.pipe.IngestTranscript(r.Context(), pipeline.IngestRequest{
		SessionID:            r.PathValue("session_id"),
		Transcript:           tr.Text,
		TranscriptConfidence: tr.Confidence,
		DurationMs:           tr.DurationMs,
		STTProvider:          stt.ProviderSelfHosted,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (d deps) handleDailyTrends(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	points, err := d.pipe.DailyTrends(r.Context(), r.PathValue("session_id"), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "points": points})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
