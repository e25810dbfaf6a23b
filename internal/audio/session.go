// SPDX-License-Identifier: MIT
package audio

import "sync/atomic"

// session is one loaded track and its transport state. The render callback
// reads it through Engine.current; control methods flip its atomics.
type session struct {
	track    *Track
	playing  atomic.Bool
	position atomic.Int64 // frames
}

func newSession(track *Track) *session {
	return &session{track: track}
}

// advance moves the play head from pos by n frames unless a seek replaced
// pos in the meantime.
func (s *session) advance(pos, n int64) {
	s.position.CompareAndSwap(pos, pos+n)
}
