package cast

import (
	"context"
	"fmt"
	"net"

	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/dns"
)

// Chromecast discovers receivers over mDNS and drives them through the
// default media receiver.
type Chromecast struct {
	// Iface limits discovery to one interface; nil browses all of them.
	Iface *net.Interface
}

func (c Chromecast) Discover(ctx context.Context) ([]Device, error) {
	entries, err := dns.DiscoverCastDNSEntries(ctx, c.Iface)
	if err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	seen := make(map[string]bool)
	devices := []Device{}
	for {
		select {
		case <-ctx.Done():
			return devices, nil
		case e, ok := <-entries:
			if !ok {
				return devices, nil
			}
			if e.UUID == "" || seen[e.UUID] {
				continue
			}
			seen[e.UUID] = true
			name := e.DeviceName
			if name == "" {
				name = e.Name
			}
			devices = append(devices, Device{ID: e.UUID, Name: name, Address: e.GetAddr(), Port: e.GetPort()})
		}
	}
}

func (c Chromecast) Dial(ctx context.Context, d Device) (Conn, error) {
	app := application.NewApplication(application.WithCacheDisabled(true))
	err := bounded(ctx, func() error { return app.Start(d.Address, d.Port) }, func(err error) {
		// Start finished after the caller gave up; nobody owns this app.
		if err == nil {
			_ = app.Close(false)
		}
	})
	if err != nil {
		return nil, err
	}
	return &chromecastConn{app: app}, nil
}

type chromecastConn struct {
	app *application.Application
}

func (c *chromecastConn) Load(ctx context.Context, req MediaRequest) error {
	return bounded(ctx, func() error {
		return c.app.Load(req.URL, 0, req.ContentType, false, true, false)
	}, nil)
}

func (c *chromecastConn) Status(ctx context.Context) (MediaStatus, error) {
	var st MediaStatus
	err := bounded(ctx, func() error {
		if err := c.app.Update(); err != nil {
			return err
		}
		_, media, _ := c.app.Status()
		if media != nil {
			st.PlayerState = media.PlayerState
			st.ContentID = media.Media.ContentId
			st.CurrentTime = float64(media.CurrentTime)
		}
		return nil
	}, nil)
	return st, err
}

func (c *chromecastConn) Close(stopMedia bool) error {
	return c.app.Close(stopMedia)
}

// bounded runs a blocking library call and gives up when ctx is done. The
// call itself keeps running in the background until the library returns;
// late, when non-nil, then receives its result so it can release whatever
// the call acquired.
func bounded(ctx context.Context, fn func() error, late func(error)) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case <-ctx.Done():
		if late != nil {
			go func() { late(<-done) }()
		}
		return ctx.Err()
	case err := <-done:
		return err
	}
}
