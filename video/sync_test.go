package video

import (
	"errors"
	"io"
	"testing"
)

// scriptedDecoder plays back a fixed packet and drain sequence so the
// synchronizer can be driven without a real container.
type scriptedDecoder struct {
	streams []StreamInfo

	// packets decode in order; a zero-width frame means the packet
	// produced nothing.
	packets []*RawFrame
	pos     int
	cur     *RawFrame

	drains   []*RawFrame
	drainPos int

	opened []int
	closed bool
}

func (d *scriptedDecoder) Streams() []StreamInfo { return d.streams }

func (d *scriptedDecoder) Open(indices []int) error {
	d.opened = indices
	return nil
}

func (d *scriptedDecoder) ReadPacket() (*Packet, error) {
	if d.pos >= len(d.packets) {
		return nil, io.EOF
	}
	d.cur = d.packets[d.pos]
	d.pos++
	return &Packet{StreamIndex: d.cur.StreamIndex}, nil
}

func (d *scriptedDecoder) DecodePacket(p *Packet) (*RawFrame, error) {
	if d.cur == nil || d.cur.Width == 0 {
		return nil, nil
	}
	return d.cur, nil
}

func (d *scriptedDecoder) Drain() (*RawFrame, error) {
	if d.drainPos >= len(d.drains) {
		return nil, nil
	}
	f := d.drains[d.drainPos]
	d.drainPos++
	return f, nil
}

func (d *scriptedDecoder) Close() error {
	d.closed = true
	return nil
}

// frameOn builds a valid 4x2 frame tagged to the given stream, with the
// luma plane filled with seq so pairs can be identified.
func frameOn(stream int, seq byte) *RawFrame {
	f := rawFrame(4, 2, seq, 128, 128)
	f.StreamIndex = stream
	return f
}

// emptyPacketOn marks a packet that decodes to no frame.
func emptyPacketOn(stream int) *RawFrame {
	return &RawFrame{StreamIndex: stream}
}

func twoStreams() []StreamInfo {
	return []StreamInfo{
		{Index: 0, Width: 4, Height: 2, PixFmt: "yuv420p"},
		{Index: 1, Width: 4, Height: 2, PixFmt: "yuv420p"},
	}
}

// runAll drives the synchronizer to completion and collects the luma value
// of each pair's left and right frame.
func runAll(t *testing.T, s *Synchronizer) (pairs [][2]byte) {
	t.Helper()
	for {
		more, err := s.ProcessStep()
		if err != nil {
			t.Fatalf("ProcessStep failed: %v", err)
		}
		if s.HasNewPair() {
			pairs = append(pairs, [2]byte{
				s.Left().Gray.Pix[0],
				s.Right().Gray.Pix[0],
			})
		}
		if !more {
			return pairs
		}
	}
}

// TestSynchronizerPairsInOrder verifies frames pair strictly by arrival
// order on each side, regardless of how the packets interleave.
func TestSynchronizerPairsInOrder(t *testing.T) {
	dec := &scriptedDecoder{
		streams: twoStreams(),
		packets: []*RawFrame{
			frameOn(0, 10),
			frameOn(0, 11),
			frameOn(1, 20),
			frameOn(1, 21),
			frameOn(0, 12),
			frameOn(1, 22),
		},
	}
	s, err := NewSynchronizer(dec)
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	pairs := runAll(t, s)
	want := [][2]byte{{10, 20}, {11, 21}, {12, 22}}
	if len(pairs) != len(want) {
		t.Fatalf("got %d pairs, want %d", len(pairs), len(want))
	}
	for i, p := range pairs {
		if p != want[i] {
			t.Errorf("pair %d = %v, want %v", i, p, want[i])
		}
	}
}

// TestSynchronizerUnevenStreams verifies the pair count is the shorter
// side's frame count and leftovers are dropped silently.
func TestSynchronizerUnevenStreams(t *testing.T) {
	dec := &scriptedDecoder{
		streams: twoStreams(),
		packets: []*RawFrame{
			frameOn(0, 10),
			frameOn(0, 11),
			frameOn(0, 12),
			frameOn(1, 20),
		},
	}
	s, err := NewSynchronizer(dec)
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	pairs := runAll(t, s)
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if pairs[0] != [2]byte{10, 20} {
		t.Errorf("pair = %v, want {10 20}", pairs[0])
	}
}

// TestSynchronizerFlushCompletesPairs verifies frames still buffered in the
// decoder at end of stream are drained and paired before the session ends.
func TestSynchronizerFlushCompletesPairs(t *testing.T) {
	dec := &scriptedDecoder{
		streams: twoStreams(),
		packets: []*RawFrame{
			frameOn(0, 10),
		},
		drains: []*RawFrame{
			frameOn(1, 20),
			frameOn(0, 11),
			frameOn(1, 21),
		},
	}
	s, err := NewSynchronizer(dec)
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	pairs := runAll(t, s)
	want := [][2]byte{{10, 20}, {11, 21}}
	if len(pairs) != len(want) {
		t.Fatalf("got %d pairs, want %d", len(pairs), len(want))
	}
	for i, p := range pairs {
		if p != want[i] {
			t.Errorf("pair %d = %v, want %v", i, p, want[i])
		}
	}
}

// TestSynchronizerSkipsUntrackedAndEmpty verifies packets from extra
// streams and packets that decode to nothing do not disturb pairing.
func TestSynchronizerSkipsUntrackedAndEmpty(t *testing.T) {
	streams := append(twoStreams(), StreamInfo{Index: 5, Width: 8, Height: 8, PixFmt: "yuv420p"})
	dec := &scriptedDecoder{
		streams: streams,
		packets: []*RawFrame{
			frameOn(0, 10),
			{StreamIndex: 5},
			emptyPacketOn(1),
			frameOn(1, 20),
		},
	}
	s, err := NewSynchronizer(dec)
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	pairs := runAll(t, s)
	if len(pairs) != 1 || pairs[0] != [2]byte{10, 20} {
		t.Fatalf("pairs = %v, want [{10 20}]", pairs)
	}
}

// TestSynchronizerTooFewStreams verifies a single-stream container is
// rejected as a format error.
func TestSynchronizerTooFewStreams(t *testing.T) {
	dec := &scriptedDecoder{
		streams: []StreamInfo{{Index: 0, Width: 4, Height: 2, PixFmt: "yuv420p"}},
	}
	if _, err := NewSynchronizer(dec); !errors.Is(err, ErrFormat) {
		t.Errorf("error = %v, want ErrFormat", err)
	}
}

// TestSynchronizerResolutionMismatch verifies two streams with different
// dimensions are rejected up front.
func TestSynchronizerResolutionMismatch(t *testing.T) {
	dec := &scriptedDecoder{
		streams: []StreamInfo{
			{Index: 0, Width: 4, Height: 2, PixFmt: "yuv420p"},
			{Index: 1, Width: 8, Height: 2, PixFmt: "yuv420p"},
		},
	}
	if _, err := NewSynchronizer(dec); !errors.Is(err, ErrFormat) {
		t.Errorf("error = %v, want ErrFormat", err)
	}
}

// TestSynchronizerUnsupportedPixFmt verifies a non-4:2:0 stream is rejected
// up front.
func TestSynchronizerUnsupportedPixFmt(t *testing.T) {
	dec := &scriptedDecoder{
		streams: []StreamInfo{
			{Index: 0, Width: 4, Height: 2, PixFmt: "yuv422p"},
			{Index: 1, Width: 4, Height: 2, PixFmt: "yuv420p"},
		},
	}
	if _, err := NewSynchronizer(dec); !errors.Is(err, ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

// TestSynchronizerResolutionChangeMidStream verifies a frame whose size
// differs from the session dimensions kills the run with a consistency
// error.
func TestSynchronizerResolutionChangeMidStream(t *testing.T) {
	big := rawFrame(8, 4, 0, 128, 128)
	big.StreamIndex = 0
	dec := &scriptedDecoder{
		streams: twoStreams(),
		packets: []*RawFrame{
			frameOn(0, 10),
			big,
		},
	}
	s, err := NewSynchronizer(dec)
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	if _, err := s.ProcessStep(); err != nil {
		t.Fatalf("first step failed: %v", err)
	}
	_, err = s.ProcessStep()
	if !errors.Is(err, ErrConsistency) {
		t.Errorf("error = %v, want ErrConsistency", err)
	}
}

// TestSynchronizerReportsIgnoredStreams verifies streams beyond the tracked
// pair are listed through Ignored rather than silently dropped, and that a
// plain two-stream container reports none.
func TestSynchronizerReportsIgnoredStreams(t *testing.T) {
	streams := append(twoStreams(),
		StreamInfo{Index: 5, Width: 8, Height: 8, PixFmt: "yuv420p"},
		StreamInfo{Index: 6, Width: 8, Height: 8, PixFmt: "yuv420p"})
	s, err := NewSynchronizer(&scriptedDecoder{streams: streams})
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}
	ignored := s.Ignored()
	if len(ignored) != 2 || ignored[0].Index != 5 || ignored[1].Index != 6 {
		t.Errorf("Ignored() = %v, want streams 5 and 6", ignored)
	}

	s, err = NewSynchronizer(&scriptedDecoder{streams: twoStreams()})
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}
	if got := s.Ignored(); len(got) != 0 {
		t.Errorf("Ignored() = %v, want none", got)
	}
}

// TestSynchronizerOpensTrackedStreams verifies only the two tracked stream
// indices are handed to the decoder.
func TestSynchronizerOpensTrackedStreams(t *testing.T) {
	streams := append(twoStreams(), StreamInfo{Index: 5, Width: 4, Height: 2, PixFmt: "yuv420p"})
	dec := &scriptedDecoder{streams: streams}
	if _, err := NewSynchronizer(dec); err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}
	if len(dec.opened) != 2 || dec.opened[0] != 0 || dec.opened[1] != 1 {
		t.Errorf("opened streams = %v, want [0 1]", dec.opened)
	}
}
