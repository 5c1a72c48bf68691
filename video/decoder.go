// Package video pairs two independently decoded video streams into stereo
// frames. It owns the decoder boundary (packet pull, decode, end-of-stream
// drain), the conversion of raw 4:2:0 frames into working images and the
// left/right synchronizer state machine.
package video

import (
	"errors"
	"image"
)

// Error kinds. Every failure in this package is terminal for the run; the
// kinds exist so the driver can report what class of problem killed the
// session, not so anyone can recover.
var (
	// ErrOpen covers missing or unreadable input files.
	ErrOpen = errors.New("video: cannot open input")

	// ErrFormat covers invalid stream metadata and unusable stream layouts.
	ErrFormat = errors.New("video: invalid format")

	// ErrDecode covers decoder failures and unsupported pixel formats.
	ErrDecode = errors.New("video: decode failed")

	// ErrConsistency covers mid-session violations such as a resolution
	// change between frames.
	ErrConsistency = errors.New("video: stream consistency violated")
)

// StreamInfo describes one video stream discovered in the container.
type StreamInfo struct {
	// Index is the stream's index within the container.
	Index int

	Width  int
	Height int

	// PixFmt is the decoder's pixel format name, e.g. "yuv420p".
	PixFmt string
}

// Packet is an opaque position token for one demuxed packet. The
// synchronizer only ever looks at the stream it belongs to.
type Packet struct {
	StreamIndex int
}

// RawFrame is one decoded frame in the decoder's native planar layout:
// a full-resolution luma plane and two chroma planes subsampled by two in
// each dimension (4:2:0). It is consumed immediately after decode and
// never retained.
type RawFrame struct {
	StreamIndex int
	Width       int
	Height      int
	PixFmt      string

	// Planes are Y, Cb, Cr. Rows are Strides[i] bytes apart.
	Planes  [3][]byte
	Strides [3]int
}

// Decoder is the external demultiplexer/decoder collaborator. The
// synchronizer drives it: packets are pulled one at a time, each packet
// decodes to zero or one frame, and after the packets run out the drain
// path flushes frames the decoder buffered internally.
type Decoder interface {
	// Streams lists the video streams found in the container.
	Streams() []StreamInfo

	// Open prepares decoding for the given container stream indices.
	Open(streamIndices []int) error

	// ReadPacket returns the next packet in container order, or io.EOF
	// when no packet remains.
	ReadPacket() (*Packet, error)

	// DecodePacket decodes one packet. A nil frame with a nil error means
	// the packet produced no frame.
	DecodePacket(p *Packet) (*RawFrame, error)

	// Drain flushes one internally buffered frame. A nil frame with a nil
	// error means the decoder is fully flushed.
	Drain() (*RawFrame, error)

	// Close releases decoder resources.
	Close() error
}

// Frame is a converted frame in working format: the full-color image plus
// the luma plane the matcher operates on.
type Frame struct {
	Color *image.RGBA
	Gray  *image.Gray
}
