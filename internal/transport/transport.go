// SPDX-License-Identifier: MIT
/*
Package transport mirrors the band levels to network consumers.

A Publisher samples the engine's spectral read surface at a fixed interval
and hands each Frame to every configured Transport: a UDP binary stream
(package udp), WebSocket JSON, or the debug log. None of this touches the
render path; the publisher only reads the engine's atomic band snapshot.
*/
package transport

import "errors"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// Frame is one snapshot of the band levels.
type Frame struct {
	Seq       uint32    `json:"seq"`
	Timestamp int64     `json:"timestamp"` // Unix nanoseconds
	Bands     []float32 `json:"bands"`
}

// Transport delivers frames to consumers. Implementations must be safe for
// use by one Publisher goroutine while Close is called from another.
type Transport interface {
	Name() string
	Send(f Frame) error
	Close() error
}

// Source is the spectral read surface the publisher samples.
type Source interface {
	Bands() []float32
	VisualizationActive() bool
}
