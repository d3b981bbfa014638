package camera

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	capture "github.com/mpoegel/picam/pkg/capture"
)

func TestStillCamera_TakeImage(t *testing.T) {
	r := &toolRecorder{setup: func(p *fakeTool) {
		p.script = func(p *fakeTool) {
			img := stillImage(1)
			p.stdoutW.Write(img[:7])
			p.stdoutW.Write(img[7:])
			p.exit()
		}
	}}
	cam := NewStillCamera(DefaultStillOptions(), nil).WithProcess(r.newProcess)

	f, err := cam.TakeImage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Data, stillImage(1)) {
		t.Errorf("frame = %x, want %x", f.Data, stillImage(1))
	}

	p := r.last()
	if p.tool != RpicamStill {
		t.Errorf("tool = %s", p.tool)
	}
	if slices.Contains(p.args, "--keypress") {
		t.Errorf("one-shot capture used keypress: %q", p.args)
	}
}

func TestStillCamera_TakeImageNoFrame(t *testing.T) {
	r := &toolRecorder{setup: func(p *fakeTool) {
		p.script = func(p *fakeTool) {
			p.stderrW.Write([]byte("ERROR: no cameras available\n"))
			p.exit()
		}
	}}
	cam := NewStillCamera(DefaultStillOptions(), nil).WithProcess(r.newProcess)

	if _, err := cam.TakeImage(context.Background()); !errors.Is(err, capture.ErrNoFrame) {
		t.Fatalf("err = %v, want ErrNoFrame", err)
	}
}

func TestStillCamera_UpdateOptions(t *testing.T) {
	r := &toolRecorder{setup: func(p *fakeTool) {
		p.script = func(p *fakeTool) {
			p.stdoutW.Write(stillImage(2))
			p.exit()
		}
	}}
	cam := NewStillCamera(DefaultStillOptions(), nil).WithProcess(r.newProcess)

	opts := cam.Options()
	opts.Tool = Raspistill
	opts.Width = 1024
	cam.UpdateOptions(opts)

	if _, err := cam.TakeImage(context.Background()); err != nil {
		t.Fatal(err)
	}
	p := r.last()
	if p.tool != Raspistill {
		t.Errorf("tool = %s, want %s", p.tool, Raspistill)
	}
	if !slices.Contains(p.args, "1024") {
		t.Errorf("args = %q, want width 1024", p.args)
	}
}

func TestStillCamera_Preview(t *testing.T) {
	r := &toolRecorder{setup: func(p *fakeTool) {
		var n byte
		p.onKeypress = func(p *fakeTool) {
			n++
			p.stdoutW.Write(stillImage(n))
		}
	}}
	cam := NewStillCamera(DefaultStillOptions(), nil).WithProcess(r.newProcess)

	if _, err := cam.LivePreview(); !errors.Is(err, ErrPreviewNotRunning) {
		t.Fatalf("err = %v, want ErrPreviewNotRunning", err)
	}
	if err := cam.StartPreview(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer cam.StopPreview()

	p := r.last()
	if !slices.Contains(p.args, "--keypress") {
		t.Errorf("preview args = %q, want --keypress", p.args)
	}
	live, err := cam.LivePreview()
	if err != nil {
		t.Fatal(err)
	}
	defer live.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for n := byte(1); n <= 2; n++ {
		f, err := cam.TakeImage(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(f.Data, stillImage(n)) {
			t.Errorf("capture %d = %x, want %x", n, f.Data, stillImage(n))
		}
		if f.Seq != uint64(n) {
			t.Errorf("capture %d seq = %d", n, f.Seq)
		}

		seen, ok, timedOut := recv(live.C(), 2*time.Second)
		if !ok || timedOut || seen.Seq != f.Seq {
			t.Errorf("live preview missed capture %d", n)
		}
	}
	if r.count() != 1 {
		t.Errorf("started %d tools, want 1", r.count())
	}

	cam.StopPreview()
	if _, err := cam.LivePreview(); !errors.Is(err, ErrPreviewNotRunning) {
		t.Errorf("err = %v, want ErrPreviewNotRunning", err)
	}
}

func TestStillCamera_PreviewEnded(t *testing.T) {
	r := &toolRecorder{}
	cam := NewStillCamera(DefaultStillOptions(), nil).WithProcess(r.newProcess)
	if err := cam.StartPreview(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer cam.StopPreview()

	r.last().exit()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var err error
	for {
		if _, err = cam.TakeImage(ctx); errors.Is(err, capture.ErrStreamEnded) || ctx.Err() != nil {
			break
		}
	}
	if !errors.Is(err, capture.ErrStreamEnded) {
		t.Errorf("err = %v, want ErrStreamEnded", err)
	}
}
