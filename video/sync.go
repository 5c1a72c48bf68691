package video

import (
	"fmt"
	"io"
)

type syncState int

const (
	stateActive syncState = iota
	stateFlushing
	stateDone
)

// Synchronizer pairs frames from two independently decoded streams. Frames
// from each side queue up in arrival order; whenever both queues are
// non-empty the fronts are popped together into the current pair slot.
//
// The caller drives progress with ProcessStep and must poll HasNewPair
// after every step: the flag is the only signal that a pair was produced,
// and it is cleared at the start of the next step. The pair slot is
// overwritten by the next pairing event, so the images must not be used
// after a further step without copying.
//
// Everything here runs on the caller's goroutine; there is no locking
// because there is no sharing.
type Synchronizer struct {
	dec Decoder

	leftIdx  int
	rightIdx int
	width    int
	height   int

	leftQueue  []*Frame
	rightQueue []*Frame

	curLeft  *Frame
	curRight *Frame
	newPair  bool

	ignored []StreamInfo

	state syncState
}

// NewSynchronizer discovers the left and right streams and prepares the
// decoder. The first two video streams with identical dimensions become
// left and right; additional streams are ignored and reported through
// Ignored; fewer than two usable streams is fatal.
func NewSynchronizer(dec Decoder) (*Synchronizer, error) {
	streams := dec.Streams()

	if len(streams) < 2 {
		return nil, fmt.Errorf("%w: cannot find matching L/R video streams", ErrFormat)
	}

	left, right := streams[0], streams[1]
	for _, st := range []StreamInfo{left, right} {
		if !supportedPixFmt(st.PixFmt) {
			return nil, fmt.Errorf("%w: unsupported pixel format %s in stream %d",
				ErrDecode, st.PixFmt, st.Index)
		}
	}
	if left.Width != right.Width || left.Height != right.Height {
		return nil, fmt.Errorf("%w: stream resolutions differ: %dx%d vs %dx%d",
			ErrFormat, left.Width, left.Height, right.Width, right.Height)
	}

	s := &Synchronizer{
		dec:      dec,
		leftIdx:  left.Index,
		rightIdx: right.Index,
		width:    left.Width,
		height:   left.Height,
		ignored:  streams[2:],
	}

	if err := dec.Open([]int{s.leftIdx, s.rightIdx}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return s, nil
}

// Width returns the session frame width.
func (s *Synchronizer) Width() int { return s.width }

// Height returns the session frame height.
func (s *Synchronizer) Height() int { return s.height }

// Ignored lists the video streams beyond the tracked pair, so the caller
// can report them. Their packets are discarded.
func (s *Synchronizer) Ignored() []StreamInfo { return s.ignored }

// HasNewPair reports whether the previous step produced a new stereo pair.
func (s *Synchronizer) HasNewPair() bool { return s.newPair }

// Left returns the left image of the current pair. It stays valid until the
// next pairing event.
func (s *Synchronizer) Left() *Frame { return s.curLeft }

// Right returns the right image of the current pair.
func (s *Synchronizer) Right() *Frame { return s.curRight }

// ProcessStep advances the pipeline by at most one decode attempt. It
// returns false when no data remains. Any error is terminal: the session
// cannot continue after one.
func (s *Synchronizer) ProcessStep() (bool, error) {
	s.newPair = false

	switch s.state {
	case stateDone:
		return false, nil

	case stateActive:
		pkt, err := s.dec.ReadPacket()
		if err == io.EOF {
			s.state = stateFlushing
			return s.flushStep()
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrDecode, err)
		}

		// Packets outside the tracked streams are skipped but still count
		// as a processed step.
		if pkt.StreamIndex != s.leftIdx && pkt.StreamIndex != s.rightIdx {
			return true, nil
		}

		frame, err := s.dec.DecodePacket(pkt)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if frame != nil {
			if err := s.push(frame); err != nil {
				return false, err
			}
		}
		return true, nil

	default: // stateFlushing
		return s.flushStep()
	}
}

// flushStep pulls one buffered frame out of the decoder. The first drain
// that produces nothing ends the session.
func (s *Synchronizer) flushStep() (bool, error) {
	frame, err := s.dec.Drain()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if frame == nil {
		s.state = stateDone
		return false, nil
	}
	if frame.StreamIndex != s.leftIdx && frame.StreamIndex != s.rightIdx {
		return true, nil
	}
	if err := s.push(frame); err != nil {
		return false, err
	}
	return true, nil
}

// push converts a raw frame, queues it on its side and runs the pairing
// rule.
func (s *Synchronizer) push(raw *RawFrame) error {
	if raw.Width != s.width || raw.Height != s.height {
		return fmt.Errorf("%w: frame size changed: got %dx%d, want %dx%d",
			ErrConsistency, raw.Width, raw.Height, s.width, s.height)
	}

	frame, err := ConvertFrame(raw)
	if err != nil {
		return err
	}

	if raw.StreamIndex == s.leftIdx {
		s.leftQueue = append(s.leftQueue, frame)
	} else {
		s.rightQueue = append(s.rightQueue, frame)
	}

	// Pair as deep as both queues allow. More than one iteration cannot
	// happen from a single push in normal operation, but if it does the
	// deepest consistent pairing wins.
	for len(s.leftQueue) > 0 && len(s.rightQueue) > 0 {
		s.curLeft = s.leftQueue[0]
		s.curRight = s.rightQueue[0]
		s.leftQueue = s.leftQueue[1:]
		s.rightQueue = s.rightQueue[1:]
		s.newPair = true
	}
	return nil
}
