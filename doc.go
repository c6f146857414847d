// Package knet implements a reliable, ordered, fragmentation-capable
// messaging transport on top of UDP: per-message optional reliability and
// in-order delivery, adaptive flow control, RFC 2988-style RTT/RTO
// estimation, and a single background worker multiplexing socket I/O and
// connection state across many peers.
package knet
