package video

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegDecoder implements the Decoder boundary on top of external ffprobe
// and ffmpeg processes: ffprobe discovers the streams and enumerates the
// container's packet order, and one ffmpeg process per tracked stream
// delivers decoded 4:2:0 frames over a pipe. Decoded frames reuse a
// per-stream buffer, which is fine because raw frames are consumed
// immediately and never retained.
type FFmpegDecoder struct {
	path    string
	streams []StreamInfo

	packetCmd   *exec.Cmd
	packetLines *bufio.Scanner

	readers map[int]*streamReader
	order   []int
	drainAt int
}

type streamReader struct {
	cmd  *exec.Cmd
	out  *bufio.Reader
	info StreamInfo
	buf  []byte
	eof  bool
}

type probeOutput struct {
	Streams []struct {
		Index     int    `json:"index"`
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		PixFmt    string `json:"pix_fmt"`
	} `json:"streams"`
}

// NewFFmpegDecoder probes the container at path and returns a decoder ready
// for Open. ffprobe and ffmpeg must be on PATH.
func NewFFmpegDecoder(path string) (*FFmpegDecoder, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		path)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe failed on %s: %v", ErrFormat, path, err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("%w: cannot parse ffprobe output: %v", ErrFormat, err)
	}

	d := &FFmpegDecoder{path: path, readers: make(map[int]*streamReader)}
	for _, st := range probe.Streams {
		if st.CodecType != "video" {
			continue
		}
		d.streams = append(d.streams, StreamInfo{
			Index:  st.Index,
			Width:  st.Width,
			Height: st.Height,
			PixFmt: st.PixFmt,
		})
	}
	return d, nil
}

// Streams lists the discovered video streams in container order.
func (d *FFmpegDecoder) Streams() []StreamInfo { return d.streams }

// Open starts the packet enumerator and one decoding process per tracked
// stream.
func (d *FFmpegDecoder) Open(streamIndices []int) error {
	// Packet order for all video streams, one stream index per line.
	d.packetCmd = exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v",
		"-show_entries", "packet=stream_index",
		"-of", "csv=p=0",
		d.path)
	stdout, err := d.packetCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("packet enumerator pipe: %v", err)
	}
	if err := d.packetCmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffprobe: %v", err)
	}
	d.packetLines = bufio.NewScanner(stdout)

	for _, idx := range streamIndices {
		info, ordinal, ok := d.lookup(idx)
		if !ok {
			return fmt.Errorf("no video stream with index %d", idx)
		}
		cw, ch := (info.Width+1)/2, (info.Height+1)/2
		frameSize := info.Width*info.Height + 2*cw*ch

		cmd := exec.Command("ffmpeg",
			"-v", "error",
			"-nostdin",
			"-i", d.path,
			"-map", fmt.Sprintf("0:v:%d", ordinal),
			"-f", "rawvideo",
			"-pix_fmt", "yuv420p",
			"pipe:1")
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("decoder pipe for stream %d: %v", idx, err)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start ffmpeg for stream %d: %v", idx, err)
		}

		d.readers[idx] = &streamReader{
			cmd:  cmd,
			out:  bufio.NewReaderSize(pipe, 1<<16),
			info: info,
			buf:  make([]byte, frameSize),
		}
		d.order = append(d.order, idx)
	}
	return nil
}

func (d *FFmpegDecoder) lookup(index int) (StreamInfo, int, bool) {
	for ordinal, st := range d.streams {
		if st.Index == index {
			return st, ordinal, true
		}
	}
	return StreamInfo{}, 0, false
}

// ReadPacket returns the next packet in container order, or io.EOF once the
// container is exhausted.
func (d *FFmpegDecoder) ReadPacket() (*Packet, error) {
	if d.packetLines == nil {
		return nil, io.EOF
	}
	if !d.packetLines.Scan() {
		if err := d.packetLines.Err(); err != nil {
			return nil, fmt.Errorf("packet enumeration failed: %v", err)
		}
		_ = d.packetCmd.Wait()
		d.packetLines = nil
		return nil, io.EOF
	}
	line := strings.TrimSpace(d.packetLines.Text())
	if line == "" {
		return d.ReadPacket()
	}
	idx, err := strconv.Atoi(strings.Split(line, ",")[0])
	if err != nil {
		return nil, fmt.Errorf("malformed packet record %q: %v", line, err)
	}
	return &Packet{StreamIndex: idx}, nil
}

// DecodePacket pulls one decoded frame for the packet's stream. Untracked
// streams and streams whose pipe already ended produce no frame.
func (d *FFmpegDecoder) DecodePacket(p *Packet) (*RawFrame, error) {
	r := d.readers[p.StreamIndex]
	if r == nil {
		return nil, nil
	}
	return d.readFrame(r)
}

// Drain returns one remaining buffered frame, alternating between the
// tracked streams, or nil once every pipe has ended.
func (d *FFmpegDecoder) Drain() (*RawFrame, error) {
	for range d.order {
		r := d.readers[d.order[d.drainAt]]
		d.drainAt = (d.drainAt + 1) % len(d.order)
		frame, err := d.readFrame(r)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return frame, nil
		}
	}
	return nil, nil
}

func (d *FFmpegDecoder) readFrame(r *streamReader) (*RawFrame, error) {
	if r.eof {
		return nil, nil
	}
	if _, err := io.ReadFull(r.out, r.buf); err != nil {
		if err == io.EOF {
			r.eof = true
			_ = r.cmd.Wait()
			return nil, nil
		}
		return nil, fmt.Errorf("truncated frame on stream %d: %v", r.info.Index, err)
	}

	w, h := r.info.Width, r.info.Height
	cw, ch := (w+1)/2, (h+1)/2
	ySize := w * h
	cSize := cw * ch
	return &RawFrame{
		StreamIndex: r.info.Index,
		Width:       w,
		Height:      h,
		PixFmt:      "yuv420p",
		Planes: [3][]byte{
			r.buf[:ySize],
			r.buf[ySize : ySize+cSize],
			r.buf[ySize+cSize : ySize+2*cSize],
		},
		Strides: [3]int{w, cw, cw},
	}, nil
}

// Close terminates any still-running helper processes.
func (d *FFmpegDecoder) Close() error {
	if d.packetCmd != nil && d.packetCmd.Process != nil && d.packetLines != nil {
		_ = d.packetCmd.Process.Kill()
		_ = d.packetCmd.Wait()
		d.packetLines = nil
	}
	for _, r := range d.readers {
		if !r.eof && r.cmd.Process != nil {
			_ = r.cmd.Process.Kill()
			_ = r.cmd.Wait()
			r.eof = true
		}
	}
	return nil
}
