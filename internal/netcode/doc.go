// Package netcode bridges a fixed-rate simulation loop and a network worker
// goroutine.
//
// The simulation goroutine queues packets and control commands and calls
// Update once per tick. The worker owns the transport host: it drains the
// queues, services network events and queues decoded packets and lifecycle
// commands back. Nothing but the three queues crosses between the two.
package netcode
