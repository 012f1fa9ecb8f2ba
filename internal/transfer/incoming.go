package transfer

import (
	"fmt"
	"os"

	"lanshare/internal/crypto"
	apperrors "lanshare/internal/errors"
	"lanshare/internal/store"
	"lanshare/internal/wire"
)

// handleTransferRequest implements spec §4.3 incoming steps 1-3:
// allocate a destination path, create a Waiting record, consult the
// accept/reject hook, and reply with a TransferResponse.
func (e *Engine) handleTransferRequest(m *wire.TransferRequest, endpoint string) {
	if _, exists := e.table.Get(m.TransferID); exists {
		return // duplicate request for a known transfer id: drop it
	}

	path, err := allocatePath(e.cfg.DownloadDir, m.FileName)
	if err != nil {
		apperrors.New(apperrors.ErrIO, apperrors.ERROR, "transfer", "allocate destination path", err)
		e.logger.Printf("transfer: %v", err)
		_ = e.sendMessage(endpoint, &wire.TransferResponse{TransferID: m.TransferID, Accepted: false})
		return
	}

	record := store.Record{
		TransferID:   m.TransferID,
		PeerID:       m.SenderID,
		PeerName:     m.SenderName,
		PeerEndpoint: endpoint,
		Direction:    store.Incoming,
		Status:       store.Waiting,
		FilePath:     path,
		FileName:     m.FileName,
		FileSize:     int64(m.FileSize),
		ExpectedHash: m.FileHash,
		StartTime:    nowMillis(),
	}
	if err := e.table.Create(record); err != nil {
		return
	}
	e.fireStatus(record)

	accepted := e.askAccept(record)
	resp := &wire.TransferResponse{
		TransferID:   m.TransferID,
		Accepted:     accepted,
		ReceiverID:   e.selfID,
		ReceiverName: e.selfName,
		FilePath:     path,
	}
	if err := e.sendMessage(endpoint, resp); err != nil {
		e.failTransfer(m.TransferID, apperrors.ErrNetwork, fmt.Sprintf("failed to send transfer response: %v", err))
		return
	}

	if !accepted {
		updated, ok := e.table.Transition(m.TransferID, store.Canceled, func(r *store.Record) {
			r.ErrorMessage = "rejected locally"
		})
		if ok {
			apperrors.New(apperrors.ErrProtocol, apperrors.INFO, "transfer", "rejected locally", nil)
			e.fireStatus(updated)
		}
	}
}

// handleFileData implements spec §4.3 incoming step 5: allocate the
// chunk buffer on the first chunk, store each chunk, update progress,
// and reassemble once every chunk has arrived.
func (e *Engine) handleFileData(m *wire.FileData, record store.Record) {
	if record.Direction != store.Incoming || record.Status.Terminal() {
		return
	}

	buf, ok := e.buffers.Get(record.TransferID)
	if !ok {
		if record.Status != store.Waiting {
			return
		}
		buf = e.buffers.Allocate(record.TransferID, int(m.TotalChunks))
		updated, transitioned := e.table.Transition(record.TransferID, store.InProgress, nil)
		if !transitioned {
			return
		}
		record = updated
		e.fireStatus(updated)
	}

	if int(m.ChunkIndex) >= buf.Total() {
		e.failTransfer(record.TransferID, apperrors.ErrProtocol, "received out-of-range chunk index")
		return
	}
	if err := buf.Store(int(m.ChunkIndex), m.Data); err != nil {
		e.failTransfer(record.TransferID, apperrors.ErrProtocol, err.Error())
		return
	}

	received := buf.ReceivedCount()
	total := buf.Total()
	bytesTransferred := record.FileSize
	if total > 0 {
		bytesTransferred = int64(received) * record.FileSize / int64(total)
	}
	updated, ok := e.table.Mutate(record.TransferID, func(r *store.Record) {
		r.BytesTransferred = bytesTransferred
	})
	if ok {
		e.fireStatus(updated)
	}

	if buf.Complete() {
		e.finishIncoming(updated, buf)
	}
}

// finishIncoming implements spec §4.3 incoming steps 6-8: reassemble,
// decrypt if configured, write to disk, verify the hash, and report
// the outcome to the sender.
func (e *Engine) finishIncoming(record store.Record, buf *store.ChunkBuffer) {
	data, err := buf.Reassemble()
	if err != nil {
		e.failTransfer(record.TransferID, apperrors.ErrProtocol, err.Error())
		return
	}

	if e.cfg.EncryptionEnabled {
		plain, err := crypto.Decrypt(data, e.cfg.EncryptionPassword)
		if err != nil {
			e.failTransfer(record.TransferID, apperrors.ErrCrypto, fmt.Sprintf("decryption failed: %v", err))
			_ = e.sendMessage(record.PeerEndpoint, &wire.TransferCancel{TransferID: record.TransferID, Reason: "decryption failed"})
			return
		}
		data = plain
	}

	if err := os.WriteFile(record.FilePath, data, 0o644); err != nil {
		e.failTransfer(record.TransferID, apperrors.ErrIO, fmt.Sprintf("failed to write file: %v", err))
		return
	}

	actualHash := crypto.HashBytes(data)
	if record.ExpectedHash != "" && actualHash != record.ExpectedHash {
		e.failTransfer(record.TransferID, apperrors.ErrHashMismatch, "file hash mismatch after transfer")
		_ = e.sendMessage(record.PeerEndpoint, &wire.TransferComplete{TransferID: record.TransferID, Success: false, FileHash: actualHash})
		return
	}

	updated, ok := e.table.Transition(record.TransferID, store.Completed, func(r *store.Record) {
		r.BytesTransferred = r.FileSize
	})
	e.buffers.Free(record.TransferID)
	if ok {
		e.fireStatus(updated)
	}
	_ = e.sendMessage(record.PeerEndpoint, &wire.TransferComplete{TransferID: record.TransferID, Success: true, FileHash: actualHash})
}

// handleTransferComplete implements spec §4.3 outgoing step 7: the
// sender learns the receiver's final verdict on its own record.
func (e *Engine) handleTransferComplete(m *wire.TransferComplete, record store.Record) {
	if record.Direction != store.Outgoing || record.Status != store.InProgress {
		return
	}
	if m.Success {
		updated, ok := e.table.Transition(record.TransferID, store.Completed, func(r *store.Record) {
			r.BytesTransferred = r.FileSize
		})
		if ok {
			e.buffers.Free(record.TransferID)
			e.fireStatus(updated)
		}
		return
	}
	e.failTransfer(record.TransferID, apperrors.ErrProtocol, "peer reported transfer failure")
}

// handleTransferCancel implements spec §4.3's cancellation propagation
// for the receiving side of a TransferCancel.
func (e *Engine) handleTransferCancel(m *wire.TransferCancel, record store.Record) {
	if record.Status.Terminal() {
		return
	}
	reason := m.Reason
	if reason == "" {
		reason = "canceled by peer"
	}
	updated, ok := e.table.Transition(record.TransferID, store.Canceled, func(r *store.Record) {
		r.ErrorMessage = reason
	})
	e.buffers.Free(record.TransferID)
	if ok {
		apperrors.New(apperrors.ErrUserCancel, apperrors.INFO, "transfer", reason, nil)
		e.fireStatus(updated)
	}
}
