package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Response is one datagram received during a discovery window
type Response struct {
	// SourceAddress is the IP the reply came from (e.g., "192.168.1.40")
	SourceAddress string

	// SourcePort is the UDP port the reply came from
	SourcePort int

	// RawPayload is the reply text exactly as received
	RawPayload string

	// ReceivedAt is when the datagram was read
	ReceivedAt time.Time
}

// String returns a human-readable representation of the response
func (r Response) String() string {
	return fmt.Sprintf("%s:%d (%d bytes)", r.SourceAddress, r.SourcePort, len(r.RawPayload))
}

func newResponse(addr net.Addr, payload []byte) Response {
	resp := Response{
		RawPayload: string(payload),
		ReceivedAt: time.Now(),
	}
	if udp, ok := addr.(*net.UDPAddr); ok {
		resp.SourceAddress = udp.IP.String()
		resp.SourcePort = udp.Port
	} else if host, port, err := net.SplitHostPort(addr.String()); err == nil {
		resp.SourceAddress = host
		resp.SourcePort, _ = strconv.Atoi(port)
	}
	return resp
}
