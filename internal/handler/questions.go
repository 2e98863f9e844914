package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/pavelanni/mockinterview/internal/store"
)

type uploadResponse struct {
	File     string             `json:"file"`
	Status   store.ImportStatus `json:"status"`
	Imported int                `json:"imported"`
}

// handleUploadQuestions imports a JSON or YAML question bank file sent as the
// multipart field questions_file. Only the llm backend keeps a local bank.
func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	if h.bank == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "questions are served by the remote service"})
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file too large"})
		return
	}

	file, header, err := r.FormFile("questions_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no file uploaded"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read file"})
		return
	}

	name := "upload/" + filepath.Base(header.Filename)
	status, n, err := h.bank.ImportData(name, data)
	if err != nil {
		slog.Warn("question upload rejected", "filename", header.Filename, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	slog.Info("uploaded questions", "filename", header.Filename, "status", status, "count", n)
	code := http.StatusOK
	switch status {
	case store.ImportLoaded:
		code = http.StatusCreated
	case store.ImportChanged:
		code = http.StatusConflict
	}
	writeJSON(w, code, uploadResponse{File: name, Status: status, Imported: n})
}
