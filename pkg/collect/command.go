package collect

import (
	"context"
	"flag"
	"net/url"

	errgroup "golang.org/x/sync/errgroup"
)

type Options struct {
	Addr       string
	ImgDir     string
	ProxyAddr  string
	MaxPending int
}

// localProxy reports whether the proxy address names this host, in which
// case the collector serves the images itself.
func (opt Options) localProxy() bool {
	u, err := url.Parse(opt.ProxyAddr)
	return err == nil && u.Hostname() == "localhost"
}

func Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	opt := Options{}
	fs.StringVar(&opt.Addr, "l", "unix:///tmp/picam.collector", "listen address")
	fs.StringVar(&opt.ImgDir, "d", "/tmp", "directory in which to store images")
	fs.StringVar(&opt.ProxyAddr, "proxy", "http://localhost:8000/image", "proxy that serves images; using localhost will start a local proxy")
	fs.IntVar(&opt.MaxPending, "pending", 8, "images queued per live viewer before the oldest is dropped")

	if err := fs.Parse(args); err != nil {
		return err
	}

	server, err := NewImageServer(opt)
	if err != nil {
		return err
	}
	var proxyServer *ProxyServer
	if opt.localProxy() {
		proxyServer = NewProxyServer(opt)
	}

	// The first component to fail stops the others.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	if proxyServer != nil {
		g.Go(proxyServer.Start)
	}
	g.Go(func() error {
		<-gctx.Done()
		server.Stop()
		if proxyServer != nil {
			proxyServer.Stop()
		}
		return nil
	})
	return g.Wait()
}
