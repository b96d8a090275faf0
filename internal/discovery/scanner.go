package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/machinewatch/internal/logging"
)

const (
	// DefaultPort is the well-known UDP port shared by the scanner and machines
	DefaultPort = 3001

	// DefaultBeacon is the payload that elicits a status reply from machines
	DefaultBeacon = "M99999"

	// DefaultScanTimeout is the default collection window
	DefaultScanTimeout = 5 * time.Second

	// maxDatagramSize is the largest reply payload we read
	maxDatagramSize = 64 * 1024
)

// Scanner broadcasts a discovery beacon and collects machine replies
type Scanner struct {
	// ListenPort is the local port the scanner binds (0 = ephemeral)
	ListenPort int

	// TargetPort is the port the beacon is sent to
	TargetPort int

	// Beacon is the fixed payload sent on every scan
	Beacon []byte

	// Timeout is the collection window used when Scan gets a non-positive timeout
	Timeout time.Duration
}

// NewScanner creates a scanner that binds and targets the default port
func NewScanner() *Scanner {
	return &Scanner{
		ListenPort: DefaultPort,
		TargetPort: DefaultPort,
		Beacon:     []byte(DefaultBeacon),
		Timeout:    DefaultScanTimeout,
	}
}

// Scan sends one beacon to broadcastIP and returns every datagram received
// before the timeout elapses. An empty result is not an error. A bind, send
// or receive failure aborts the scan and discards anything already
// collected. The socket is closed before Scan returns.
func (s *Scanner) Scan(ctx context.Context, broadcastIP string, timeout time.Duration) ([]Response, error) {
	if timeout <= 0 {
		timeout = s.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(broadcastIP, strconv.Itoa(s.TargetPort)))
	if err != nil {
		return nil, fmt.Errorf("invalid broadcast address %q: %w", broadcastIP, err)
	}

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", s.ListenPort))
	if err != nil {
		return nil, fmt.Errorf("failed to bind discovery socket: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	// Timer starts once the socket is bound
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	responses := make(chan Response)
	readErr := make(chan error, 1)
	go s.receive(conn, responses, readErr, done)

	if _, err := conn.WriteTo(s.Beacon, target); err != nil {
		return nil, fmt.Errorf("failed to send discovery beacon to %s: %w", target, err)
	}
	logging.LogDatagram("sent", target.String(), s.Beacon)
	logging.Debug("Discovery beacon sent",
		zap.String("target", target.String()),
		zap.Duration("timeout", timeout),
	)

	collected := make([]Response, 0)
	for {
		select {
		case resp := <-responses:
			collected = append(collected, resp)
		case err := <-readErr:
			return nil, fmt.Errorf("failed to receive discovery replies: %w", err)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			logging.Debug("Discovery window closed", zap.Int("responses", len(collected)))
			return collected, nil
		}
	}
}

// receive reads datagrams until the socket fails or done is closed.
// Our own beacon echoed back by the broadcast is dropped.
func (s *Scanner) receive(conn net.PacketConn, out chan<- Response, errs chan<- error, done <-chan struct{}) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-done:
			default:
				if !errors.Is(err, net.ErrClosed) {
					errs <- err
				}
			}
			return
		}

		payload := buf[:n]
		logging.LogDatagram("received", addr.String(), payload)
		if bytes.Equal(payload, s.Beacon) {
			continue
		}

		resp := newResponse(addr, payload)
		select {
		case out <- resp:
		case <-done:
			return
		}
	}
}
