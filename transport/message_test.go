package transport

import (
	"bytes"
	"testing"
)

func Test_MessageHeader(t *testing.T) {
	name := `0123456789abcdef:7`
	mh := MessageHeader{
		NameLength: uint32(len(name)),
		Name:       []byte(name),
	}
	b := &bytes.Buffer{}
	if err := mh.WriteTo(b); err != nil {
		t.Errorf("MessageHeader::WriteTo failed: %v", err)
	}
	var got MessageHeader
	if err := got.ReadFrom(b); err != nil {
		t.Errorf("MessageHeader::ReadFrom failed: %v", err)
	}
	if string(got.Name) != name {
		t.Errorf("unexpected name: %s", got.Name)
	}

	if err := mh.WriteTo(b); err != nil {
		t.Errorf("MessageHeader::WriteTo failed: %v", err)
	}
	if err := got.Expect(b, `wrong-name`); err == nil {
		t.Errorf("MessageHeader::Expect should have failed")
	}
}

func Test_Message(t *testing.T) {
	payload := []byte(`pingpong`)
	m := Message{
		Length: uint32(len(payload)),
		Data:   payload,
	}
	b := &bytes.Buffer{}
	if err := m.WriteTo(b); err != nil {
		t.Errorf("Message::WriteTo failed: %v", err)
	}
	var got Message
	if err := got.ReadFrom(b); err != nil {
		t.Errorf("Message::ReadFrom failed: %v", err)
	}
	if !bytes.Equal(got.Data, payload) {
		t.Errorf("unexpected data: %s", got.Data)
	}

	if err := m.WriteTo(b); err != nil {
		t.Errorf("Message::WriteTo failed: %v", err)
	}
	short := Message{Length: 2, Data: make([]byte, 2)}
	if err := short.ReadInto(b); err != errUnexpectedMessageLength {
		t.Errorf("Message::ReadInto should have rejected the length")
	}
}
