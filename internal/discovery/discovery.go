// Package discovery advertises the KISS-over-TCP service via mDNS/DNS-SD
// so clients on the local network can find the TNC without typing in an
// IP address and port, grounded on the reference TNC's dns_sd.go.
package discovery

import (
	"context"
	"fmt"
	"os"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

const ServiceType = "_kiss-tnc._tcp"

// Advertiser owns the DNS-SD responder goroutine for the lifetime of the
// process; Stop tears it down.
type Advertiser struct {
	cancel context.CancelFunc
}

// Advertise starts announcing name (or a generated default) on port over
// mDNS. The responder runs until Stop is called.
func Advertise(name string, port int, logger *log.Logger) (*Advertiser, error) {
	if name == "" {
		name = defaultServiceName()
	}

	cfg := dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: port,
	}
	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: create service: %w", err)
	}
	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("discovery: create responder: %w", err)
	}
	if _, err := responder.Add(svc); err != nil {
		return nil, fmt.Errorf("discovery: add service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := responder.Respond(ctx); err != nil && logger != nil {
			logger.Error("dns-sd responder stopped", "err", err)
		}
	}()

	if logger != nil {
		logger.Info("announcing KISS TCP service", "name", name, "port", port)
	}
	return &Advertiser{cancel: cancel}, nil
}

func (a *Advertiser) Stop() { a.cancel() }

func defaultServiceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "OFDM TNC"
	}
	return "OFDM TNC @ " + host
}
