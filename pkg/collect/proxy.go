package collect

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	snapshot "github.com/mpoegel/picam/pkg/snapshot"
)

// ProxyServer serves stored images over HTTP.
type ProxyServer struct {
	opt        Options
	httpServer *http.Server
}

func NewProxyServer(opt Options) *ProxyServer {
	addr := "localhost:8000"
	if u, err := url.Parse(opt.ProxyAddr); err == nil && u.Host != "" {
		addr = u.Host
	}

	s := &ProxyServer{
		opt: opt,
		httpServer: &http.Server{
			Addr:        addr,
			ReadTimeout: 5 * time.Second,
			Handler:     NewProxyHandler(opt.ImgDir),
		},
	}
	return s
}

// NewProxyHandler serves the images in dir:
//
//	GET /image/{name}  one image
//	GET /images        the image list as JSON, oldest first
//	GET /latest.jpg    the newest image
func NewProxyHandler(dir string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /image/", http.StripPrefix("/image", http.FileServer(http.Dir(dir))))
	mux.HandleFunc("GET /images", func(w http.ResponseWriter, r *http.Request) {
		entries, err := snapshot.List(dir)
		if err != nil {
			slog.Error("failed to list images", "dir", dir, "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("content-type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			slog.Warn("failed to write image list", "err", err)
		}
	})
	mux.HandleFunc("GET /latest.jpg", func(w http.ResponseWriter, r *http.Request) {
		entries, err := snapshot.List(dir)
		if err != nil || len(entries) == 0 {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("cache-control", "no-cache")
		http.ServeFile(w, r, entries[len(entries)-1].Path)
	})
	return mux
}

func (s *ProxyServer) Start() error {
	slog.Info("starting proxy server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *ProxyServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx)
}
