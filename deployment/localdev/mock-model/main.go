package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"net/http"
	"time"
)

type event struct {
	Timestamp int64  `json:"timestamp"`
	Domain    string `json:"domain"`
	NodeID    string `json:"node_id"`
	Severity  string `json:"severity"`
}

type request struct {
	Members []event `json:"members"`
}

type rootCause struct {
	Domain string `json:"domain"`
	NodeID string `json:"node_id"`
}

var severityWeight = map[string]float64{"minor": 0.1, "major": 0.25, "critical": 0.45}

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/score", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode(w, r)
		if !ok {
			return
		}
		residual := 1.0
		domains := map[string]struct{}{}
		for _, m := range req.Members {
			residual *= 1 - severityWeight[m.Severity]
			domains[m.Domain] = struct{}{}
		}
		residual *= math.Pow(0.7, float64(len(domains)-1))
		writeJSON(w, map[string]any{"confidence": math.Min(0.98, 1-residual)})
	})

	// Picks the earliest member of the most populated domain.
	mux.HandleFunc("/v1/root-cause", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode(w, r)
		if !ok {
			return
		}
		if len(req.Members) == 0 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		counts := map[string]int{}
		for _, m := range req.Members {
			counts[m.Domain]++
		}
		best := req.Members[0]
		for _, m := range req.Members[1:] {
			switch {
			case counts[m.Domain] > counts[best.Domain]:
				best = m
			case counts[m.Domain] == counts[best.Domain] && m.Timestamp < best.Timestamp:
				best = m
			}
		}
		writeJSON(w, map[string]any{"root_cause": rootCause{Domain: best.Domain, NodeID: best.NodeID}})
	})

	logger := log.New(log.Writer(), "model-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request) (request, bool) {
	var req request
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
