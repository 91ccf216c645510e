package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bytedance/sonic"
)

// MaxLineSize bounds a single framed message
const MaxLineSize = 8 * 1024 * 1024

var ErrMalformed = errors.New("malformed message")

// Encoder writes newline-delimited messages. Safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder creates an encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes msg followed by a newline
func (e *Encoder) Encode(msg Message) error {
	line, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(line)
	return err
}

// Decoder reads newline-delimited messages
type Decoder struct {
	r   *bufio.Reader
	max int
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024), max: MaxLineSize}
}

// Decode returns the next message. Lines that are not valid messages,
// including ones longer than MaxLineSize, yield an error wrapping
// ErrMalformed or ErrUnknownType; the stream stays usable and the caller
// may keep decoding. io.EOF marks the end of the stream.
func (d *Decoder) Decode() (Message, error) {
	for {
		line, err := d.readLine()
		if err != nil {
			return Message{}, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return Unmarshal(line)
	}
}

// readLine returns the next line. An oversized line is consumed up to its
// newline and reported as malformed.
func (d *Decoder) readLine() ([]byte, error) {
	var (
		line     []byte
		overflow bool
	)
	for {
		chunk, err := d.r.ReadSlice('\n')
		if !overflow {
			n := len(chunk)
			if n > 0 && chunk[n-1] == '\n' {
				n--
			}
			if len(line)+n > d.max {
				overflow, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil:
		case errors.Is(err, io.EOF) && (overflow || len(line) > 0):
		default:
			return nil, err
		}

		if overflow {
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrMalformed, d.max)
		}
		return line, nil
	}
}

// Unmarshal parses a single framed message
func Unmarshal(data []byte) (Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !msg.Type.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return msg, nil
}
