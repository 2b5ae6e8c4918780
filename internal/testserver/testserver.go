package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const ManifestPath = "/api/download"

// Server is a fake download API and CDN. The manifest endpoint answers with a
// configurable body, files are served from memory.
type Server struct {
	*httptest.Server
	router chi.Router
	log    *logrus.Logger

	mu             sync.Mutex
	manifestBody   []byte
	manifestStatus int
	files          map[string][]byte
	failing        int
	truncateAfter  int
	requests       map[string]int
	lastQuery      url.Values
}

func New(t testing.TB) *Server {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	s := &Server{
		router:         chi.NewRouter(),
		log:            log,
		manifestStatus: http.StatusOK,
		files:          make(map[string][]byte),
		truncateAfter:  -1,
		requests:       make(map[string]int),
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(s.logMiddleware)
	s.router.Use(s.countMiddleware)
	s.router.NotFound(s.notFoundHandler)

	s.router.Get(ManifestPath, s.manifestHandler)
	s.router.With(s.failMiddleware).Get("/files/{name}", s.fileHandler)
	s.router.Get("/redirect/{name}", s.redirectHandler)

	s.Server = httptest.NewServer(s.router)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) SetManifest(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifestBody = []byte(body)
}

// SetDownloadURL publishes a manifest pointing at the given URL.
func (s *Server) SetDownloadURL(u string) {
	b, _ := json.Marshal(map[string]string{"downloadUrl": u})
	s.SetManifest(string(b))
}

func (s *Server) SetManifestStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifestStatus = code
}

func (s *Server) SetFile(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
}

// FailNext makes the next n file requests answer with 500.
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = n
}

// TruncateAfter makes file responses announce their full length but drop the
// connection after n bytes. A negative n disables truncation.
func (s *Server) TruncateAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncateAfter = n
}

func (s *Server) ManifestURL() string {
	return s.URL + ManifestPath
}

func (s *Server) FileURL(name string) string {
	return s.URL + "/files/" + name
}

func (s *Server) RedirectURL(name string) string {
	return s.URL + "/redirect/" + name
}

func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func (s *Server) LastQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

func (s *Server) manifestHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body, status := s.manifestBody, s.manifestStatus
	s.lastQuery = r.URL.Query()
	s.mu.Unlock()
	if status != http.StatusOK {
		s.writeJSONError(w, r, status, fmt.Errorf("manifest unavailable"))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(body)
}

func (s *Server) fileHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	data, ok := s.files[name]
	truncateAfter := s.truncateAfter
	s.mu.Unlock()
	if !ok {
		s.notFoundHandler(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if truncateAfter < 0 || truncateAfter >= len(data) {
		_, _ = w.Write(data)
		return
	}
	_, _ = w.Write(data[:truncateAfter])
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		s.log.Error(err)
		return
	}
	_ = conn.Close()
}

func (s *Server) redirectHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/files/"+chi.URLParam(r, "name"), http.StatusFound)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) writeJSONError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	s.log.WithFields(logrus.Fields{
		"requestId": middleware.GetReqID(r.Context()),
		"status":    statusCode,
	}).Warnf("error: %s", err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.WithField("requestId", middleware.GetReqID(r.Context())).Debugf("%s %s", r.Method, r.URL.EscapedPath())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) countMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) failMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		fail := s.failing > 0
		if fail {
			s.failing--
		}
		s.mu.Unlock()
		if fail {
			s.writeJSONError(w, r, http.StatusInternalServerError, fmt.Errorf("injected failure"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
