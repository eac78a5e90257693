// Package server exposes ingestion and extraction of uploaded papers over HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MalithGihan/steelminer/internal/deps"
	"github.com/MalithGihan/steelminer/internal/extract"
	"github.com/MalithGihan/steelminer/internal/ingest"
	"github.com/MalithGihan/steelminer/internal/store"
	"github.com/MalithGihan/steelminer/internal/validate"
	"github.com/MalithGihan/steelminer/pkg/types"
)

const maxUpload = 64 << 20

type Server struct {
	Store     *store.FS
	Loader    *ingest.Loader
	Extractor *extract.Extractor
	Runner    deps.Runner
	Gatherer  prometheus.Gatherer
	Log       *zap.Logger
}

type extractResp struct {
	JobID   string              `json:"jobId"`
	Records []types.SteelRecord `json:"records"`
	Errors  []string            `json:"errors"`
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"service":"steelminer"}`))
	})
	r.Get("/deps", s.deps)
	r.Post("/ingest", s.ingest)
	r.Get("/jobs/{id}/tables", s.tables)
	r.Post("/jobs/{id}/extract", s.extract)
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) deps(w http.ResponseWriter, r *http.Request) {
	rep := deps.Check(r.Context(), s.Runner)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      len(rep.Missing()) == 0,
		"tools":   rep.Tools,
		"missing": rep.Missing(),
	})
}

// Upload
func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}
	jobID := uuid.NewString()
	jobDir, err := s.Store.MkJob(jobID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var names []string
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if name == "." || name == string(filepath.Separator) {
			continue
		}
		if err := saveUpload(fh, filepath.Join(jobDir, "uploads", name)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		names = append(names, name)
	}
	s.Log.Info("job created", zap.String("job", jobID), zap.Strings("files", names))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "jobId": jobID, "files": names})
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// uploads lists a job's files in name order. Unknown or malformed ids are
// reported as not found.
func (s *Server) uploads(id string) ([]string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, os.ErrNotExist
	}
	dir := filepath.Join(s.Store.JobDir(id), "uploads")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Parse uploads into tables
func (s *Server) tables(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	files, err := s.uploads(id)
	if err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	parsed := make([]ingest.ParsedFile, 0, len(files))
	for _, f := range files {
		parsed = append(parsed, s.Loader.Parse(r.Context(), f))
	}
	writeJSON(w, http.StatusOK, ingest.Summarize(parsed))
}

// Mine uploads into validated records
func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	files, err := s.uploads(id)
	if err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	resp := extractResp{JobID: id, Errors: []string{}}
	var dataset []types.SteelRecord
	for _, f := range files {
		rec, err := s.Extractor.ProcessPaper(r.Context(), f)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", filepath.Base(f), err))
			continue
		}
		if !rec.HasData() {
			resp.Errors = append(resp.Errors, filepath.Base(f)+": no data extracted")
			continue
		}
		dataset = append(dataset, rec)
	}
	valid, errs := validate.Dataset(dataset)
	resp.Records = valid
	resp.Errors = append(resp.Errors, errs...)
	s.Log.Info("job extracted", zap.String("job", id), zap.Int("records", len(valid)), zap.Int("errors", len(resp.Errors)))
	writeJSON(w, http.StatusOK, resp)
}
