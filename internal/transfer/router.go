package transfer

import (
	"encoding/binary"
	"fmt"

	"lanshare/internal/wire"
)

// frameBytes prepends the spec §6.1 4-byte big-endian length header to
// an already-marshaled message body.
func frameBytes(body []byte) []byte {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	out := make([]byte, 0, 4+len(body))
	out = append(out, header...)
	out = append(out, body...)
	return out
}

// frameAssembler reassembles length-prefixed frames out of the
// arbitrarily-chunked byte slices the Socket Service hands to onBytes,
// one per TCP endpoint, preserving wire order (spec §5 "Inbound
// messages on a single TCP connection are delivered to the engine in
// wire order").
type frameAssembler struct {
	buf []byte
}

func (a *frameAssembler) feed(data []byte) ([]wire.Message, error) {
	a.buf = append(a.buf, data...)

	var out []wire.Message
	for {
		if len(a.buf) < 4 {
			return out, nil
		}
		n := binary.BigEndian.Uint32(a.buf[:4])
		if n > wire.MaxMessageSize {
			return out, fmt.Errorf("transfer: frame of %d bytes exceeds limit", n)
		}
		total := 4 + int(n)
		if len(a.buf) < total {
			return out, nil
		}
		body := a.buf[4:total]
		msg, err := wire.Unmarshal(body)
		a.buf = a.buf[total:]
		if err != nil {
			// A malformed frame is dropped; the stream stays in sync
			// because the length prefix already told us where it ends.
			continue
		}
		out = append(out, msg)
	}
}

func (e *Engine) onBytes(data []byte, endpoint string) {
	e.assemblerMu.Lock()
	a, ok := e.assemblers[endpoint]
	if !ok {
		a = &frameAssembler{}
		e.assemblers[endpoint] = a
	}
	e.assemblerMu.Unlock()

	msgs, err := a.feed(data)
	if err != nil {
		e.logger.Printf("transfer: %v, closing %s", err, endpoint)
		e.assemblerMu.Lock()
		delete(e.assemblers, endpoint)
		e.assemblerMu.Unlock()
		e.transport.CloseConn(endpoint)
		return
	}
	for _, msg := range msgs {
		e.dispatch(msg, endpoint)
	}
}

// dispatch routes one decoded message to its handler by kind, applying
// spec §4.3 item 11's rule for unknown transfer ids: only
// TransferRequest may create a record; every other kind is dropped
// silently when its transfer_id is unrecognized.
func (e *Engine) dispatch(msg wire.Message, endpoint string) {
	switch m := msg.(type) {
	case *wire.TransferRequest:
		e.handleTransferRequest(m, endpoint)
		return
	}

	record, ok := e.table.Get(msg.ID())
	if !ok {
		return
	}

	switch m := msg.(type) {
	case *wire.TransferResponse:
		e.handleTransferResponse(m, record)
	case *wire.FileData:
		e.handleFileData(m, record)
	case *wire.TransferComplete:
		e.handleTransferComplete(m, record)
	case *wire.TransferCancel:
		e.handleTransferCancel(m, record)
	}
}
