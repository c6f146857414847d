package knet

import "errors"

// ErrTruncated is returned when a buffer ends before a field that the
// header promised was present.
var ErrTruncated = errors.New("knet: buffer is shorter than the header declares")

// ErrTooManyMessages is returned when a single datagram claims more messages
// than the parser is willing to walk.
var ErrTooManyMessages = errors.New("knet: datagram exceeds the maximum number of messages it may contain")

// ErrSocketFull is returned by the packer when the underlying socket write
// would block; selected messages are returned to the outbound queue
// unmodified.
var ErrSocketFull = errors.New("knet: socket send buffer is full")

// ErrConnectionClosed is returned by Connection methods once the connection
// has reached the Closed state.
var ErrConnectionClosed = errors.New("knet: connection is closed")

// ErrListenerClosed is returned by Listener methods after Close has been
// called.
var ErrListenerClosed = errors.New("knet: listener is closed")
