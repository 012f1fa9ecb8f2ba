// Package wire implements the TCP wire protocol of spec §6.1: a tagged
// sum of five message kinds, framed with a 4-byte big-endian length
// prefix (spec §9 Open Question 1) and UTF-8 JSON bodies.
//
// The source language modeled this as a base class with a type tag and
// runtime downcasts. Go has no inheritance, so each message kind is its
// own struct implementing the small Message interface, and Unmarshal
// switches on the envelope's numeric Type to produce the concrete value
// — the idiomatic Go analogue of a tagged sum type.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

type Type int

const (
	TypeTransferRequest Type = iota
	TypeTransferResponse
	TypeFileData
	TypeTransferComplete
	TypeTransferCancel
)

func (t Type) String() string {
	switch t {
	case TypeTransferRequest:
		return "TransferRequest"
	case TypeTransferResponse:
		return "TransferResponse"
	case TypeFileData:
		return "FileData"
	case TypeTransferComplete:
		return "TransferComplete"
	case TypeTransferCancel:
		return "TransferCancel"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Message is implemented by every wire message kind.
type Message interface {
	Kind() Type
	ID() string
}

type TransferRequest struct {
	TransferID string
	SenderID   string
	SenderName string
	FileName   string
	FileSize   uint64
	FileHash   string
}

func (m *TransferRequest) Kind() Type { return TypeTransferRequest }
func (m *TransferRequest) ID() string { return m.TransferID }

type TransferResponse struct {
	TransferID   string
	Accepted     bool
	ReceiverID   string
	ReceiverName string
	FilePath     string
}

func (m *TransferResponse) Kind() Type { return TypeTransferResponse }
func (m *TransferResponse) ID() string { return m.TransferID }

type FileData struct {
	TransferID  string
	ChunkIndex  uint32
	TotalChunks uint32
	Data        []byte
}

func (m *FileData) Kind() Type { return TypeFileData }
func (m *FileData) ID() string { return m.TransferID }

type TransferComplete struct {
	TransferID string
	Success    bool
	FileHash   string
}

func (m *TransferComplete) Kind() Type { return TypeTransferComplete }
func (m *TransferComplete) ID() string { return m.TransferID }

type TransferCancel struct {
	TransferID string
	Reason     string
}

func (m *TransferCancel) Kind() Type { return TypeTransferCancel }
func (m *TransferCancel) ID() string { return m.TransferID }

// envelope is the flat on-the-wire JSON shape. Every field beyond type
// and transferId is populated only by the message kinds that use it;
// Unmarshal reads back only the fields relevant to the discriminated Type,
// so unused zero values from the shared struct never leak into the
// decoded value.
type envelope struct {
	Type       int    `json:"type"`
	TransferID string `json:"transferId"`

	SenderID   string `json:"senderId,omitempty"`
	SenderName string `json:"senderName,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	FileSize   uint64 `json:"fileSize,omitempty"`
	FileHash   string `json:"fileHash,omitempty"`

	Accepted     bool   `json:"accepted"`
	ReceiverID   string `json:"receiverId,omitempty"`
	ReceiverName string `json:"receiverName,omitempty"`
	FilePath     string `json:"filePath,omitempty"`

	ChunkIndex  uint32 `json:"chunkIndex"`
	TotalChunks uint32 `json:"totalChunks"`
	Data        []byte `json:"data,omitempty"`

	Success bool `json:"success"`

	Reason string `json:"reason,omitempty"`
}

func toEnvelope(msg Message) envelope {
	env := envelope{Type: int(msg.Kind()), TransferID: msg.ID()}
	switch m := msg.(type) {
	case *TransferRequest:
		env.SenderID = m.SenderID
		env.SenderName = m.SenderName
		env.FileName = m.FileName
		env.FileSize = m.FileSize
		env.FileHash = m.FileHash
	case *TransferResponse:
		env.Accepted = m.Accepted
		env.ReceiverID = m.ReceiverID
		env.ReceiverName = m.ReceiverName
		env.FilePath = m.FilePath
	case *FileData:
		env.ChunkIndex = m.ChunkIndex
		env.TotalChunks = m.TotalChunks
		env.Data = m.Data
	case *TransferComplete:
		env.Success = m.Success
		env.FileHash = m.FileHash
	case *TransferCancel:
		env.Reason = m.Reason
	}
	return env
}

func fromEnvelope(env envelope) (Message, error) {
	switch Type(env.Type) {
	case TypeTransferRequest:
		return &TransferRequest{
			TransferID: env.TransferID,
			SenderID:   env.SenderID,
			SenderName: env.SenderName,
			FileName:   env.FileName,
			FileSize:   env.FileSize,
			FileHash:   env.FileHash,
		}, nil
	case TypeTransferResponse:
		return &TransferResponse{
			TransferID:   env.TransferID,
			Accepted:     env.Accepted,
			ReceiverID:   env.ReceiverID,
			ReceiverName: env.ReceiverName,
			FilePath:     env.FilePath,
		}, nil
	case TypeFileData:
		return &FileData{
			TransferID:  env.TransferID,
			ChunkIndex:  env.ChunkIndex,
			TotalChunks: env.TotalChunks,
			Data:        env.Data,
		}, nil
	case TypeTransferComplete:
		return &TransferComplete{
			TransferID: env.TransferID,
			Success:    env.Success,
			FileHash:   env.FileHash,
		}, nil
	case TypeTransferCancel:
		return &TransferCancel{
			TransferID: env.TransferID,
			Reason:     env.Reason,
		}, nil
	default:
		return nil, fmt.Errorf("wire: unknown message type %d", env.Type)
	}
}

// Marshal encodes msg as its JSON envelope, without the length prefix.
func Marshal(msg Message) ([]byte, error) {
	return json.Marshal(toEnvelope(msg))
}

// Unmarshal decodes a single JSON envelope into its concrete Message.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: malformed message: %w", err)
	}
	return fromEnvelope(env)
}

// MaxMessageSize bounds a single length-prefixed message body, generous
// headroom over a 1 MiB chunk base64-inflated. Anything that reads a
// wire length prefix (ReadMessage, Decoder, transfer.frameAssembler)
// must reject a prefix larger than this rather than buffering toward it.
const MaxMessageSize = 64 << 20

// WriteMessage frames msg with a 4-byte big-endian length prefix and
// writes it to w in one call, per spec §9 Open Question 1.
func WriteMessage(w io.Writer, msg Message) error {
	body, err := Marshal(msg)
	if err != nil {
		return err
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	if _, err := w.Write(append(header, body...)); err != nil {
		return err
	}
	return nil
}

// ReadMessage reads one length-prefixed message from r.
func ReadMessage(r io.Reader) (Message, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header)
	if n > MaxMessageSize {
		return nil, fmt.Errorf("wire: message of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return Unmarshal(body)
}

// Decoder incrementally parses framed messages from a stream, in wire
// order, for use by a per-connection read loop.
type Decoder struct {
	r io.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func (d *Decoder) Next() (Message, error) {
	return ReadMessage(d.r)
}
