package web

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	websocket "github.com/coder/websocket"
	broker "github.com/mpoegel/picam/pkg/broker"
	capture "github.com/mpoegel/picam/pkg/capture"
)

type fakeSource struct {
	frames *broker.Broker[capture.Frame]
	err    error
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: broker.NewBroker[capture.Frame]()}
}

func (f *fakeSource) Subscribe() (*broker.Subscription[capture.Frame], error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.frames.Subscribe(), nil
}

// publish waits for n viewers, then broadcasts data as one frame. It may be
// called from any goroutine.
func (f *fakeSource) publish(t *testing.T, n int, data []byte) {
	deadline := time.Now().Add(2 * time.Second)
	for f.frames.Subscribers() < n {
		if time.Now().After(deadline) {
			t.Errorf("timed out waiting for %d viewers", n)
			return
		}
		time.Sleep(time.Millisecond)
	}
	f.frames.Broadcast(capture.Frame{ID: "test", Data: data})
}

var (
	jpegA = []byte{0xFF, 0xD8, 0xFF, 0xE0, 'a', 0xFF, 0xD9}
	jpegB = []byte{0xFF, 0xD8, 0xFF, 0xE0, 'b', 'b', 0xFF, 0xD9}
)

func newTestServer(t *testing.T, source Source) *httptest.Server {
	t.Helper()
	s, err := NewServer(Options{Title: "porch", SnapshotTimeout: 2 * time.Second}, source)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleIndex(t *testing.T) {
	srv := newTestServer(t, newFakeSource())

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "<title>porch</title>") || !strings.Contains(string(body), "/ws") {
		t.Errorf("unexpected index page:\n%s", body)
	}
}

func TestHandleSnapshot(t *testing.T) {
	source := newFakeSource()
	srv := newTestServer(t, source)

	go source.publish(t, 1, jpegA)

	resp, err := http.Get(srv.URL + "/snapshot.jpg")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("content-type"); ct != "image/jpeg" {
		t.Errorf("content-type = %s", ct)
	}
	if !bytes.Equal(body, jpegA) {
		t.Errorf("body = %x, want %x", body, jpegA)
	}
}

func TestHandleSnapshot_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		source func() *fakeSource
		status int
	}{
		{"source error", func() *fakeSource {
			s := newFakeSource()
			s.err = errors.New("camera is not capturing")
			return s
		}, http.StatusServiceUnavailable},
		{"stream ended", func() *fakeSource {
			s := newFakeSource()
			s.frames.Stop()
			return s
		}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.source())
			resp, err := http.Get(srv.URL + "/snapshot.jpg")
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestHandleStream(t *testing.T) {
	source := newFakeSource()
	srv := newTestServer(t, source)

	resp, err := http.Get(srv.URL + "/stream.mjpg")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("content-type"))
	if err != nil {
		t.Fatal(err)
	}
	if mediaType != "multipart/x-mixed-replace" {
		t.Fatalf("media type = %s", mediaType)
	}

	go func() {
		source.publish(t, 1, jpegA)
		source.publish(t, 1, jpegB)
		source.frames.Stop()
	}()

	mr := multipart.NewReader(resp.Body, params["boundary"])
	for i, want := range [][]byte{jpegA, jpegB} {
		part, err := mr.NextPart()
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part %d content-type = %s", i, ct)
		}
		got, err := io.ReadAll(part)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("part %d = %x, want %x", i, got, want)
		}
	}
	if _, err := mr.NextPart(); err != io.EOF {
		t.Errorf("after end of stream: err = %v, want EOF", err)
	}
}

func TestHandleWebsocket(t *testing.T) {
	source := newFakeSource()
	srv := newTestServer(t, source)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	go func() {
		source.publish(t, 1, jpegA)
		source.publish(t, 1, jpegB)
		source.frames.Stop()
	}()

	for i, want := range [][]byte{jpegA, jpegB} {
		typ, got, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if typ != websocket.MessageBinary {
			t.Errorf("message %d type = %v", i, typ)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("message %d = %x, want %x", i, got, want)
		}
	}

	_, _, err = c.Read(ctx)
	if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure {
		t.Errorf("close status = %v (err %v), want normal closure", status, err)
	}
}
