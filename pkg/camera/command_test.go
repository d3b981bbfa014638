package camera

import (
	"context"
	"path/filepath"
	"testing"

	config "github.com/mpoegel/picam/pkg/config"
	snapshot "github.com/mpoegel/picam/pkg/snapshot"
)

func TestNewSaver_Resize(t *testing.T) {
	dir := t.TempDir()
	saver, err := newSaver(context.Background(), Options{Save: "file://" + dir, Width: 640, Height: 480})
	if err != nil {
		t.Fatal(err)
	}
	defer saver.Close()

	fileSaver, ok := saver.(*snapshot.FileSaver)
	if !ok {
		t.Fatalf("saver = %T, want *snapshot.FileSaver", saver)
	}
	if fileSaver.Dir != dir || fileSaver.Width != 640 || fileSaver.Height != 480 {
		t.Errorf("saver = %+v", fileSaver)
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if got := configPath("/etc/picam/still.json", "still"); got != "/etc/picam/still.json" {
		t.Errorf("configPath = %s, want the flag value", got)
	}
	if got, want := configPath("", "stream"), filepath.Join(dir, "picam", "stream.json"); got != want {
		t.Errorf("configPath = %s, want %s", got, want)
	}
}

func TestRunStill_WriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.json")
	args := []string{"-config", path, "-write-config", "-tool", string(Raspistill)}
	if err := RunStill(context.Background(), args); err != nil {
		t.Fatal(err)
	}

	got, err := config.Load(path, StillOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultStillOptions()
	want.Tool = Raspistill
	if got.Tool != want.Tool || got.DelayMS != want.DelayMS {
		t.Errorf("saved options = %+v, want %+v", got, want)
	}
}

func TestRunStream_WriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.json")
	if err := RunStream(context.Background(), []string{"-config", path, "-write-config"}); err != nil {
		t.Fatal(err)
	}

	got, err := config.Load(path, StreamOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Codec != CodecMJPEG || got.Framerate != 30 {
		t.Errorf("saved options = %+v", got)
	}
}
