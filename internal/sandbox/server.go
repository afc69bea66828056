// Package sandbox serves a local imitation of the UploadThing REST and
// ingest endpoints on top of the in-memory mock store.
package sandbox

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/farmisen/upyloadthing/pkg/uploadthing"
	"github.com/farmisen/upyloadthing/pkg/uploadthing/mock"
)

const (
	// IngestPrefix is the path the presigned upload URLs point at.
	IngestPrefix = "/ingest"
	// Region is the region advertised in sandbox tokens.
	Region = "sandbox"

	maxUploadMemory = 32 << 20
)

// Config configures a Server.
type Config struct {
	APIKey  string
	Store   *mock.Mock
	Latency time.Duration
	Fail    FailConfig
	Logger  *zap.Logger
	// Now and Rand default to time.Now and rand.Float64.
	Now  func() time.Time
	Rand func() float64
}

// Server is an http.Handler imitating UploadThing.
type Server struct {
	cfg    Config
	router chi.Router
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sandbox: api key is required")
	}
	if cfg.Store == nil {
		cfg.Store = mock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}

	s := &Server{cfg: cfg}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.injectFaults)

	r.Route("/v6", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/deleteFiles", s.handleDeleteFiles)
		r.Post("/renameFiles", s.handleRenameFiles)
		r.Post("/listFiles", s.handleListFiles)
		r.Post("/getUsageInfo", s.handleUsageInfo)
		r.Post("/updateACL", s.handleUpdateACL)
	})
	r.Put(IngestPrefix+"/{fileKey}", s.handleIngest)
	r.Get("/f/{fileKey}", s.handleDownload)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Store returns the backing mock.
func (s *Server) Store() *mock.Mock {
	return s.cfg.Store
}

// Token returns an UPLOADTHING_TOKEN accepted by the sandbox.
func (s *Server) Token() (string, error) {
	return uploadthing.EncodeToken(uploadthing.Token{
		APIKey:  s.cfg.APIKey,
		AppID:   s.cfg.Store.AppID(),
		Regions: []string{Region},
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.cfg.Logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Latency > 0 {
			timer := time.NewTimer(s.cfg.Latency)
			select {
			case <-r.Context().Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if s.cfg.Fail.Rate > 0 && s.cfg.Rand() < s.cfg.Fail.Rate {
			code := s.cfg.Fail.Code
			if code == 0 {
				code = http.StatusInternalServerError
			}
			writeError(w, code, "failure injected")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("x-uploadthing-api-key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	signed := scheme + "://" + r.Host + r.RequestURI
	if err := uploadthing.VerifyPresignedURL(signed, s.cfg.APIKey, s.cfg.Now()); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	params, err := uploadthing.ParsePresignedURL(signed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.AppID != s.cfg.Store.AppID() {
		writeError(w, http.StatusForbidden, "Unknown app")
		return
	}
	if params.FileKey != chi.URLParam(r, "fileKey") {
		writeError(w, http.StatusBadRequest, "File key mismatch")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read file: %v", err))
		return
	}
	if int64(len(data)) != params.FileSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File size mismatch: expected %d, got %d", params.FileSize, len(data)))
		return
	}

	typ := params.FileType
	if typ == "" {
		typ = header.Header.Get("Content-Type")
	}
	res, err := s.cfg.Store.Upload(r.Context(), &uploadthing.PreparedFile{
		Key:                params.FileKey,
		CustomID:           params.CustomID,
		Name:               params.FileName,
		Size:               params.FileSize,
		Type:               typ,
		ContentDisposition: params.ContentDisposition,
		ACL:                params.ACL,
		Data:               data,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	data, fd, err := s.cfg.Store.Open(r.Context(), chi.URLParam(r, "fileKey"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	res, err := s.cfg.Store.Result(r.Context(), fd.Key)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if res.ACL == uploadthing.ACLPrivate {
		writeError(w, http.StatusForbidden, "File is private")
		return
	}
	if res.Type != "" {
		w.Header().Set("Content-Type", res.Type)
	}
	w.Header().Set("ETag", `"`+res.FileHash+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleDeleteFiles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileKeys  []string `json:"fileKeys"`
		CustomIDs []string `json:"customIds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	keys, keyType := req.FileKeys, uploadthing.KeyTypeFileKey
	if len(req.CustomIDs) > 0 {
		if len(keys) > 0 {
			writeError(w, http.StatusBadRequest, "Provide either fileKeys or customIds, not both")
			return
		}
		keys, keyType = req.CustomIDs, uploadthing.KeyTypeCustomID
	}
	if len(keys) == 0 {
		writeError(w, http.StatusBadRequest, "No file keys provided")
		return
	}
	res, err := s.cfg.Store.DeleteFiles(r.Context(), keys, keyType)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRenameFiles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates []uploadthing.RenameUpdate `json:"updates"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	for _, u := range req.Updates {
		if (u.FileKey == "") == (u.CustomID == "") || u.NewName == "" {
			writeError(w, http.StatusBadRequest, "Each update must contain either 'fileKey' or 'customId' and a 'newName'")
			return
		}
	}
	res, err := s.cfg.Store.RenameFiles(r.Context(), req.Updates)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	var opts uploadthing.ListOptions
	if !decodeBody(w, r, &opts) {
		return
	}
	res, err := s.cfg.Store.ListFiles(r.Context(), opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUsageInfo(w http.ResponseWriter, r *http.Request) {
	res, err := s.cfg.Store.GetUsageInfo(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdateACL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates []uploadthing.ACLUpdate `json:"updates"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	for _, u := range req.Updates {
		if u.FileKey == "" && u.CustomID == "" {
			writeError(w, http.StatusBadRequest, "Each update must contain either 'fileKey' or 'customId'")
			return
		}
	}
	res, err := s.cfg.Store.UpdateACL(r.Context(), req.Updates)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decodeBody reads an optional JSON body into out. It writes a 400 and
// returns false on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return false
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return true
	}
	if err := json.Unmarshal(data, out); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, err error) {
	var apiErr *uploadthing.APIError
	switch {
	case errors.As(err, &apiErr):
		writeError(w, apiErr.StatusCode, apiErr.Message)
	case errors.Is(err, uploadthing.ErrNotFound):
		writeError(w, http.StatusNotFound, "File not found")
	case errors.Is(err, uploadthing.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
