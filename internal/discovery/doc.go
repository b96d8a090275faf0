// Package discovery finds machines on the local network with a UDP broadcast
// beacon and advertises the machinewatch server itself over mDNS.
//
// # Discovery Process
//
// A scan works as follows:
//  1. Binds a UDP socket to the discovery port (3001 by default)
//  2. Sends the beacon ("M99999" by default) to <broadcast>:<port>
//  3. Collects every reply datagram until the timeout elapses
//  4. Closes the socket and returns the replies, possibly none
//
// Replies are not deduplicated; a machine that answers twice appears twice.
// UDP gives no delivery guarantee, so a silent machine is normal operation
// rather than an error. Only socket failures (bind, send, receive) make a
// scan fail, and a failed scan returns no partial results.
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	responses, err := scanner.Scan(ctx, "192.168.1.255", 3*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, r := range responses {
//	    fmt.Printf("%s:%d -> %q\n", r.SourceAddress, r.SourcePort, r.RawPayload)
//	}
//
// # Network Requirements
//
//   - Machines must be on the same broadcast domain
//   - Firewalls must allow UDP on the discovery port in both directions
//   - Only one scan per host can hold the discovery port at a time
//
// # Thread Safety
//
// A Scanner holds no state between scans and may be shared, but concurrent
// scans on the same port will fail to bind. Callers serialize their scans.
package discovery
