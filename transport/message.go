package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var endian = binary.LittleEndian

// MaxTag is the highest message tag the wire layer supports. Tags are
// encoded into channel names, so the bound is a policy choice rather
// than a field width; it is advertised to upper layers as the tag
// upper bound of the runtime.
const MaxTag = 1 << 23

const NoFlag uint32 = 0

// MessageHeader names the logical channel a message belongs to.
type MessageHeader struct {
	NameLength uint32
	Name       []byte
	Flags      uint32
}

func (h *MessageHeader) WriteTo(w io.Writer) error {
	if err := binary.Write(w, endian, h.NameLength); err != nil {
		return err
	}
	if _, err := w.Write(h.Name); err != nil {
		return err
	}
	return binary.Write(w, endian, h.Flags)
}

// ReadFrom reads the message header from a reader into a new buffer.
// The name length is obtained from the reader and should be trusted.
func (h *MessageHeader) ReadFrom(r io.Reader) error {
	if err := binary.Read(r, endian, &h.NameLength); err != nil {
		return err
	}
	h.Name = make([]byte, h.NameLength)
	if err := readN(r, h.Name, int(h.NameLength)); err != nil {
		return err
	}
	return binary.Read(r, endian, &h.Flags)
}

// Expect reads the message header from a reader and checks the name
// against the one the caller is waiting for.
func (h *MessageHeader) Expect(r io.Reader, name string) error {
	if err := h.ReadFrom(r); err != nil {
		return err
	}
	if string(h.Name) != name {
		return fmt.Errorf("unexpected name %s", h.Name)
	}
	return nil
}

func (h MessageHeader) String() string {
	return fmt.Sprintf("messageHeader{length=%d,name=%s}", h.NameLength, string(h.Name))
}

// Message is the payload transferred on a logical channel.
type Message struct {
	Length uint32
	Data   []byte
}

func (m Message) WriteTo(w io.Writer) error {
	if err := binary.Write(w, endian, m.Length); err != nil {
		return err
	}
	_, err := w.Write(m.Data)
	return err
}

// ReadFrom reads the message from a reader into a new buffer.
// The message length is obtained from the reader and should be trusted.
func (m *Message) ReadFrom(r io.Reader) error {
	if err := binary.Read(r, endian, &m.Length); err != nil {
		return err
	}
	m.Data = make([]byte, m.Length)
	return readN(r, m.Data, int(m.Length))
}

var errUnexpectedMessageLength = errors.New("unexpected message length")

// ReadInto reads the message from a reader into an existing buffer.
func (m *Message) ReadInto(r io.Reader) error {
	var length uint32
	if err := binary.Read(r, endian, &length); err != nil {
		return err
	}
	if length != m.Length {
		return errUnexpectedMessageLength
	}
	return readN(r, m.Data, int(m.Length))
}

func (m Message) String() string {
	return fmt.Sprintf("message{length=%d}", m.Length)
}

func readN(r io.Reader, buffer []byte, n int) error {
	for offset := 0; offset < n; {
		k, err := r.Read(buffer[offset:])
		if err != nil {
			return err
		}
		offset += k
	}
	return nil
}
