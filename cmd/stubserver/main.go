// Stub backend for local development: serves the transcription,
// translation and streaming HTTP contracts with canned responses so the
// pipeline can run without the real services.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	transcriptionAddr := flag.String("transcription", ":9000", "transcription service listen address")
	translationAddr := flag.String("translation", ":9001", "translation service listen address")
	streamingAddr := flag.String("streaming", ":9002", "streaming service listen address")
	flag.Parse()

	go serve("transcription", *transcriptionAddr, transcriptionRouter())
	go serve("translation", *translationAddr, translationRouter())

	st := newStreamState()
	serve("streaming", *streamingAddr, streamingRouter(st))
}

func serve(name, addr string, handler http.Handler) {
	log.Printf("stub %s service listening on %s", name, addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("%s: %v", name, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func transcriptionRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Get("/health", health)

	var counter int64
	var mu sync.Mutex

	r.Post("/transcribe", func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseMultipartForm(32 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
			return
		}
		f, hdr, err := req.FormFile("audio")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing audio file"})
			return
		}
		defer f.Close()

		if hdr.Size < 100 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file too small"})
			return
		}

		mu.Lock()
		counter++
		n := counter
		mu.Unlock()

		lang := req.FormValue("language")
		if lang == "" || lang == "auto" {
			lang = "en"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"text":     fmt.Sprintf("stub transcription %d (%d bytes, mode=%s)", n, hdr.Size, req.FormValue("mode")),
			"language": lang,
			"segments": []any{},
		})
	})
	return r
}

func translationRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Get("/health", health)

	r.Post("/translate", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Text           string `json:"text"`
			SourceLanguage string `json:"source_language"`
			TargetLanguage string `json:"target_language"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Text == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"translated_text": fmt.Sprintf("[%s] %s", body.TargetLanguage, body.Text),
		})
	})

	r.Get("/languages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"supported_languages": []map[string]string{
				{"code": "en", "name": "English"},
				{"code": "es", "name": "Spanish"},
				{"code": "fr", "name": "French"},
				{"code": "de", "name": "German"},
			},
		})
	})
	return r
}

// streamState holds the fake server-side capture session.
type streamState struct {
	mu       sync.Mutex
	active   bool
	sequence int64
	results  []streamResult
}

type streamResult struct {
	Text      string    `json:"text"`
	Language  string    `json:"language"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	IsPartial bool      `json:"isPartial"`
	IsFinal   bool      `json:"isFinal"`
}

func newStreamState() *streamState {
	return &streamState{}
}

func (s *streamState) next() (streamResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return streamResult{}, false
	}
	res := streamResult{
		Text:      fmt.Sprintf("stub stream result %d", s.sequence),
		Language:  "en",
		Sequence:  s.sequence,
		Timestamp: time.Now(),
		IsFinal:   true,
	}
	s.sequence++
	s.results = append(s.results, res)
	return res, true
}

func (s *streamState) since(t time.Time) []streamResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []streamResult{}
	for _, r := range s.results {
		if r.Timestamp.After(t) {
			out = append(out, r)
		}
	}
	return out
}

func streamingRouter(st *streamState) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Get("/health", health)

	r.Post("/start", func(w http.ResponseWriter, _ *http.Request) {
		st.mu.Lock()
		st.active = true
		st.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	})

	r.Post("/stop", func(w http.ResponseWriter, _ *http.Request) {
		st.mu.Lock()
		st.active = false
		st.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	})

	r.Get("/transcriptions", func(w http.ResponseWriter, req *http.Request) {
		since := time.Time{}
		if v := req.URL.Query().Get("since"); v != "" {
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
				since = time.UnixMilli(ms)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"transcriptions": st.since(since)})
	})

	r.Get("/stream", func(w http.ResponseWriter, req *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-req.Context().Done():
				return
			case <-ticker.C:
				res, ok := st.next()
				if !ok {
					continue
				}
				payload, _ := json.Marshal(res)
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	})
	return r
}
