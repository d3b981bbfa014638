package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"

	camera "github.com/mpoegel/picam/pkg/camera"
	cleanup "github.com/mpoegel/picam/pkg/cleanup"
	collect "github.com/mpoegel/picam/pkg/collect"
	web "github.com/mpoegel/picam/pkg/web"
)

type command func(ctx context.Context, args []string) error

var commands = map[string]command{
	"still":   camera.RunStill,
	"stream":  camera.RunStream,
	"collect": collect.Run,
	"web":     web.Run,
	"cleanup": cleanup.Run,
}

func usage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return fmt.Sprintf("usage: picam [-v] <%s> [flags]", strings.Join(names, "|"))
}

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()
	args := flag.Args()

	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if len(args) < 1 {
		fmt.Println(usage())
		os.Exit(1)
	}
	run, ok := commands[args[0]]
	if !ok {
		fmt.Printf("unknown command: %s\n%s\n", args[0], usage())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		slog.Info("stopping")
		cancel()
	}()

	if err := run(ctx, args[1:]); err != nil {
		slog.Error("command failed", "command", args[0], "err", err)
		os.Exit(1)
	}
}
