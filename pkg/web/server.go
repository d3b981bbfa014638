package web

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	websocket "github.com/coder/websocket"
	capture "github.com/mpoegel/picam/pkg/capture"
)

//go:embed views/*.html
var views embed.FS

type Server struct {
	opt        Options
	source     Source
	plate      *template.Template
	httpServer *http.Server
}

func NewServer(opt Options, source Source) (*Server, error) {
	plate, err := template.ParseFS(views, "views/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		opt:    opt,
		source: source,
		plate:  plate,
	}
	s.httpServer = &http.Server{
		Addr:        opt.Addr,
		ReadTimeout: 5 * time.Second,
		Handler:     s.Handler(),
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.HandleIndex)
	mux.HandleFunc("GET /snapshot.jpg", s.HandleSnapshot)
	mux.HandleFunc("GET /stream.mjpg", s.HandleStream)
	mux.HandleFunc("GET /ws", s.HandleWebsocket)
	return mux
}

func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx)
}

type IndexView struct {
	Title string
}

func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.plate.ExecuteTemplate(w, "IndexView", IndexView{Title: s.opt.Title}); err != nil {
		slog.Error("failed to execute index template", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// HandleSnapshot responds with the next frame from the source.
func (s *Server) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	sub, err := s.source.Subscribe()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.opt.SnapshotTimeout)
	defer cancel()

	select {
	case f, ok := <-sub.C():
		if !ok {
			http.Error(w, "stream ended", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("content-type", "image/jpeg")
		w.Header().Set("content-length", strconv.Itoa(len(f.Data)))
		w.Header().Set("cache-control", "no-cache")
		w.Write(f.Data)
	case <-ctx.Done():
		http.Error(w, "no frame", http.StatusGatewayTimeout)
	}
}

// HandleStream serves the source as multipart/x-mixed-replace MJPEG, which
// browsers render in a plain img tag.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	sub, err := s.source.Subscribe()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	mw := multipart.NewWriter(w)
	w.Header().Set("content-type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	w.Header().Set("cache-control", "no-cache")
	w.Header().Set("connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	slog.Info("stream viewer connected", "remote", r.RemoteAddr)
	defer slog.Info("stream viewer disconnected", "remote", r.RemoteAddr)

	for {
		select {
		case f, ok := <-sub.C():
			if !ok {
				mw.Close()
				return
			}
			if err := writePart(mw, f); err != nil {
				slog.Debug("stream write failed", "err", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writePart(mw *multipart.Writer, f capture.Frame) error {
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":   {"image/jpeg"},
		"Content-Length": {strconv.Itoa(len(f.Data))},
	})
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}

// HandleWebsocket sends every frame as one binary message.
func (s *Server) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	sub, err := s.source.Subscribe()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "err", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "goodbye")

	ctx := c.CloseRead(r.Context())
	for {
		select {
		case f, ok := <-sub.C():
			if !ok {
				c.Close(websocket.StatusNormalClosure, "stream ended")
				return
			}
			if err := writeMessage(ctx, c, f.Data); err != nil {
				slog.Debug("websocket write failed", "err", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeMessage(ctx context.Context, c *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.Write(ctx, websocket.MessageBinary, data)
}
