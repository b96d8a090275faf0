// Package simulator answers discovery beacons the way a machine on the shop
// floor does, for exercising discovery without hardware.
package simulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/muurk/machinewatch/internal/logging"
)

// ReplyFunc produces the status text sent in answer to a beacon
type ReplyFunc func() string

// Responder listens on a UDP port and replies to every beacon it receives
type Responder struct {
	conn    net.PacketConn
	beacon  []byte
	reply   ReplyFunc
	replies atomic.Int64
}

// Listen binds addr (e.g. ":3001" or "127.0.0.1:0") and returns a responder
// ready to Serve.
func Listen(ctx context.Context, addr string, beacon []byte, reply ReplyFunc) (*Responder, error) {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind simulator socket: %w", err)
	}
	return &Responder{conn: conn, beacon: beacon, reply: reply}, nil
}

// Addr returns the bound local address
func (r *Responder) Addr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Replies returns how many replies have been sent
func (r *Responder) Replies() int64 {
	return r.replies.Load()
}

// Serve answers beacons until ctx is cancelled or the socket fails.
// Datagrams that are not the beacon are ignored.
func (r *Responder) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = r.conn.Close() })
	defer stop()

	buf := make([]byte, 2048)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("simulator read failed: %w", err)
		}
		if !bytes.Equal(buf[:n], r.beacon) {
			logging.Debug("Ignoring non-beacon datagram", zap.String("from", from.String()))
			continue
		}

		payload := []byte(r.reply())
		if _, err := r.conn.WriteTo(payload, from); err != nil {
			logging.Warn("Failed to send simulated status", zap.String("to", from.String()), zap.Error(err))
			continue
		}
		r.replies.Add(1)
		logging.LogDatagram("sent", from.String(), payload)
	}
}

// Close releases the socket
func (r *Responder) Close() error {
	return r.conn.Close()
}
