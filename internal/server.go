package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/boardzilla/lootmod/internal/treasure"
	"github.com/boardzilla/lootmod/internal/tsv"
)

// Server previews the patched output of a mod and tells connected browsers
// when it changes.
type Server struct {
	patcher *Patcher
	port    int
	senders map[int]chan interface{}
	nextID  int
	lock    sync.Mutex
	patchMu sync.Mutex
}

func NewServer(patcher *Patcher, port int) (*Server, error) {
	return &Server{
		patcher: patcher,
		port:    port,
		senders: map[int]chan interface{}{},
	}, nil
}

type reloadEvent struct {
	Type   string  `json:"type"`
	Report *Report `json:"report"`
}

type patchErrorEvent struct {
	Type string `json:"type"`
	Err  string `json:"err"`
}

type pingEvent struct {
	Type string `json:"type"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	fmt.Printf("error: %s\n", err)
	w.Header().Set("Content-type", "application/json")
	w.WriteHeader(status)
	body, _ := sjson.Set(`{}`, "error", err.Error())
	if _, err := w.Write([]byte(body)); err != nil {
		fmt.Printf("error while writing: %s\n", err)
	}
}

func writeJSON(w http.ResponseWriter, body []byte) {
	w.Header().Add("Content-type", "application/json")
	w.Header().Add("Cache-control", "no-store")
	w.WriteHeader(200)
	if _, err := w.Write(body); err != nil {
		fmt.Printf("error while writing: %s\n", err)
	}
}

// outputPath resolves a request path inside the output directory.
func (s *Server) outputPath(name string) (string, error) {
	manifest, err := s.patcher.Manifest()
	if err != nil {
		return "", err
	}
	outDir := s.patcher.OutDir(manifest)
	target := filepath.Join(outDir, filepath.FromSlash(path.Clean("/"+name)))
	rel, err := filepath.Rel(outDir, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the output directory", name)
	}
	return target, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)

		if !ok {
			http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
			return
		}

		s.lock.Lock()
		currentID := s.nextID
		c := make(chan interface{}, 10)
		s.senders[currentID] = c
		s.nextID++
		s.lock.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		flusher.Flush()

		encoder := json.NewEncoder(w)
		defer func() {
			s.lock.Lock()
			defer s.lock.Unlock()
			delete(s.senders, currentID)
		}()

		for {
			select {
			case <-r.Context().Done():
				return
			case e := <-c:
				if _, err := w.Write([]byte("data: ")); err != nil {
					fmt.Printf("err: %#v\n", err)
					return
				}
				if err := encoder.Encode(e); err != nil {
					fmt.Printf("err: %#v\n", err)
					return
				}
				if _, err := w.Write([]byte("\n")); err != nil {
					fmt.Printf("err: %#v\n", err)
					return
				}
				flusher.Flush()
			}
		}
	})

	r.Get("/manifest", func(w http.ResponseWriter, r *http.Request) {
		manifest, err := s.patcher.Manifest()
		if err != nil {
			writeError(w, 500, err)
			return
		}
		body, err := json.Marshal(manifest)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, body)
	})

	r.Post("/patch", func(w http.ResponseWriter, r *http.Request) {
		report, err := s.Patch(r.Context())
		if err != nil {
			writeError(w, 422, err)
			return
		}
		body, err := json.Marshal(report)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, body)
	})

	r.Get("/tables", func(w http.ResponseWriter, r *http.Request) {
		s.listOutput(w, "**/*.txt")
	})

	r.Get("/tables/*", func(w http.ResponseWriter, r *http.Request) {
		target, err := s.outputPath(chi.URLParam(r, "*"))
		if err != nil {
			writeError(w, 400, err)
			return
		}
		table, err := tsv.ReadFile(target)
		if err != nil {
			if os.IsNotExist(err) {
				writeError(w, 404, err)
				return
			}
			writeError(w, 500, err)
			return
		}
		tc := r.URL.Query().Get("tc")
		body := []byte(`[]`)
		for _, rec := range table.Records() {
			if tc != "" && rec.Get(treasure.ColumnName) != tc {
				continue
			}
			body, err = sjson.SetBytes(body, "-1", rec.Map())
			if err != nil {
				writeError(w, 500, err)
				return
			}
		}
		writeJSON(w, body)
	})

	r.Get("/strings", func(w http.ResponseWriter, r *http.Request) {
		s.listOutput(w, "**/*.json")
	})

	r.Get("/strings/*", func(w http.ResponseWriter, r *http.Request) {
		target, err := s.outputPath(chi.URLParam(r, "*"))
		if err != nil {
			writeError(w, 400, err)
			return
		}
		f, err := os.ReadFile(target) // #nosec G304
		if err != nil {
			if os.IsNotExist(err) {
				writeError(w, 404, err)
				return
			}
			writeError(w, 500, err)
			return
		}
		f = []byte(strings.TrimPrefix(string(f), "\ufeff"))
		key := r.URL.Query().Get("key")
		if key == "" {
			writeJSON(w, f)
			return
		}
		entry := gjson.GetBytes(f, fmt.Sprintf(`#(Key==%q)`, key))
		if !entry.Exists() {
			writeError(w, 404, fmt.Errorf("no string %s", key))
			return
		}
		writeJSON(w, []byte(entry.Raw))
	})

	return r
}

// listOutput responds with the output files matching pattern.
func (s *Server) listOutput(w http.ResponseWriter, pattern string) {
	manifest, err := s.patcher.Manifest()
	if err != nil {
		writeError(w, 500, err)
		return
	}
	outDir := s.patcher.OutDir(manifest)
	names := []string{}
	if _, err := os.Stat(outDir); err == nil {
		names, err = doublestar.Glob(os.DirFS(outDir), pattern)
		if err != nil {
			writeError(w, 500, err)
			return
		}
	}
	if names == nil {
		names = []string{}
	}
	body, err := sjson.SetBytes([]byte(`{}`), "files", names)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, body)
}

// Patch runs the patcher and notifies listeners of the outcome.
func (s *Server) Patch(ctx context.Context) (*Report, error) {
	s.patchMu.Lock()
	defer s.patchMu.Unlock()
	report, err := s.patcher.Patch(ctx)
	if err != nil {
		s.PatchError(err)
		return nil, err
	}
	s.Reload(report)
	return report, nil
}

func (s *Server) Serve() error {
	go func() {
		for {
			s.broadcast(pingEvent{Type: "ping"})
			time.Sleep(10 * time.Second)
		}
	}()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 200 * time.Millisecond,
		Addr:              fmt.Sprintf(":%d", s.port),
	}
	return srv.ListenAndServe()
}

// broadcast drops the event for listeners whose buffer is full.
func (s *Server) broadcast(e interface{}) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, sender := range s.senders {
		select {
		case sender <- e:
		default:
		}
	}
}

func (s *Server) Reload(report *Report) {
	s.broadcast(&reloadEvent{
		Type:   "reload",
		Report: report,
	})
}

func (s *Server) PatchError(err error) {
	fmt.Printf("sending patch error!\n")
	s.broadcast(&patchErrorEvent{
		Type: "patchError",
		Err:  err.Error(),
	})
}
