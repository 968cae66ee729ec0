package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/corpusd/corpusd/internal/qlog"
)

// promptTemplate frames retrieved chunks for the language model.
const promptTemplate = `Answer the question based only on the following context:

%s

---

Answer the question based on the above context: %s`

// contextSeparator joins retrieved chunk texts inside the prompt.
const contextSeparator = "\n\n---\n\n"

type queryRequest struct {
	QueryText string `json:"query_text"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the RAG API. Use the /query endpoint to interact with the LLM",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleQuery answers a question from the indexed corpus. The response body
// is the same record that lands in the query log, including timing fields;
// failures return the record shape with the error field set and status 500.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.QueryText) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query_text must not be empty"})
		return
	}

	rec := qlog.Record{
		QueryText:    req.QueryText,
		FirstRequest: s.consumeFirstRequest(),
		ChangeMade:   s.corpusChanged(),
	}

	searchStart := time.Now()
	vector, err := s.embedder.Embed(r.Context(), req.QueryText)
	if err != nil {
		s.failQuery(w, rec, start, fmt.Errorf("embed query: %w", err))
		return
	}
	results, err := s.searcher.Search(r.Context(), vector, SearchK)
	if err != nil {
		s.failQuery(w, rec, start, fmt.Errorf("search index: %w", err))
		return
	}
	rec.SearchTimeSeconds = time.Since(searchStart).Seconds()

	contexts := make([]string, len(results))
	sources := make([]string, len(results))
	for i, res := range results {
		contexts[i] = res.Text
		sources[i] = res.ID
	}
	prompt := fmt.Sprintf(promptTemplate, strings.Join(contexts, contextSeparator), req.QueryText)

	modelStart := time.Now()
	response, err := s.generator.Generate(r.Context(), prompt)
	if err != nil {
		s.failQuery(w, rec, start, fmt.Errorf("generate answer: %w", err))
		return
	}
	rec.ModelTimeSeconds = time.Since(modelStart).Seconds()

	rec.Response = response
	rec.Sources = sources
	rec.TotalTimeSeconds = time.Since(start).Seconds()
	rec = rec.Normalized()

	if err := s.queryLog.Append(rec); err != nil {
		s.log.Error("append query log", "error", err)
	}
	writeJSON(w, http.StatusOK, rec)
}

// failQuery logs and returns the error-shaped record.
func (s *Server) failQuery(w http.ResponseWriter, rec qlog.Record, start time.Time, err error) {
	s.log.Error("query failed", "query", rec.QueryText, "error", err)

	rec.TotalTimeSeconds = time.Since(start).Seconds()
	rec.Error = err.Error()
	rec = rec.Normalized()
	if logErr := s.queryLog.Append(rec); logErr != nil {
		s.log.Error("append query log", "error", logErr)
	}
	writeJSON(w, http.StatusInternalServerError, rec)
}

type fileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	files := make([]fileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{Name: entry.Name(), Size: info.Size()})
	}
	writeJSON(w, http.StatusOK, map[string][]fileInfo{"files": files})
}

// handleUploadFile accepts a multipart form with a "file" part and writes it
// into the corpus directory. The watcher notices the new file and triggers a
// resync; the server itself does not touch the index.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file part: %w", err))
		return
	}
	defer func() { _ = file.Close() }()

	name, err := sanitizeFilename(header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	dst, err := os.Create(filepath.Join(s.dataDir, name))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, file); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.noteCorpusChange()
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("File '%s' uploaded successfully.", name),
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	name, err := sanitizeFilename(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	path := filepath.Join(s.dataDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		writeError(w, http.StatusNotFound, fmt.Errorf("file not found"))
		return
	}
	if err := os.Remove(path); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.noteCorpusChange()
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("File '%s' deleted successfully.", name),
	})
}

// handleRenameFile moves a corpus file to the name given in the new_name
// query parameter. The resulting watcher-driven resync repoints the file's
// chunks instead of re-embedding them.
func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	name, err := sanitizeFilename(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	newName, err := sanitizeFilename(r.URL.Query().Get("new_name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("new_name: %w", err))
		return
	}

	oldPath := filepath.Join(s.dataDir, name)
	if _, err := os.Stat(oldPath); os.IsNotExist(err) {
		writeError(w, http.StatusNotFound, fmt.Errorf("file not found"))
		return
	}
	if err := os.Rename(oldPath, filepath.Join(s.dataDir, newName)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.noteCorpusChange()
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("File '%s' renamed to '%s' successfully.", name, newName),
	})
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	name, err := sanitizeFilename(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	path := filepath.Join(s.dataDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		writeError(w, http.StatusNotFound, fmt.Errorf("file not found"))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

// sanitizeFilename rejects names that would escape the corpus directory.
func sanitizeFilename(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename must not be empty")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid filename %q", name)
	}
	return name, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}
