// Package discovery advertises the API on the local network over mDNS so
// desktop boards can find it without configuration.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
)

const ServiceType = "_pdfpro._tcp"

// Advertiser wraps a running mDNS responder.
type Advertiser struct {
	server *mdns.Server
	log    zerolog.Logger
}

// Advertise announces the API on port with the given TXT records.
func Advertise(port int, info []string, log zerolog.Logger) (*Advertiser, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	if len(info) == 0 {
		info = []string{"PDFPro"}
	}

	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	log = log.With().Str("component", "mdns").Logger()
	log.Info().Str("service", ServiceType).Int("port", port).Msg("advertising on local network")
	return &Advertiser{server: server, log: log}, nil
}

func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Peer is one discovered API instance.
type Peer struct {
	Name string
	Addr string
	Info []string
}

// Browse collects the instances answering within timeout or until ctx ends.
func Browse(ctx context.Context, timeout time.Duration) ([]Peer, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	done := make(chan error, 1)
	go func() {
		done <- mdns.QueryContext(ctx, params)
		close(entries)
	}()

	var peers []Peer
	for e := range entries {
		if peer, ok := toPeer(e); ok {
			peers = append(peers, peer)
		}
	}
	if err := <-done; err != nil && ctx.Err() == nil {
		return peers, fmt.Errorf("mdns query: %w", err)
	}
	return peers, nil
}

func toPeer(e *mdns.ServiceEntry) (Peer, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Peer{}, false
	}
	return Peer{
		Name: e.Name,
		Addr: net.JoinHostPort(e.AddrV4.String(), fmt.Sprint(e.Port)),
		Info: e.InfoFields,
	}, true
}
