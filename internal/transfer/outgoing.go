package transfer

import (
	"fmt"
	"os"
	"time"

	apperrors "lanshare/internal/errors"
	"lanshare/internal/idgen"
	"lanshare/internal/store"
	"lanshare/internal/wire"

	"lanshare/internal/crypto"
)

// SendFile implements spec §4.3's outgoing algorithm: validate the
// file and peer, ensure a connection, create the record, and hand off
// to the request/response handshake. It returns once the
// TransferRequest has been written; the rest of the transfer proceeds
// on the record's own goroutine and is observed through OnStatus.
func (e *Engine) SendFile(peerID, filePath string) (string, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return "", fmt.Errorf("transfer: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("transfer: %s is a directory", filePath)
	}

	peer, ok := e.peers.Peer(peerID)
	if !ok {
		return "", fmt.Errorf("transfer: unknown peer %s", peerID)
	}
	endpoint := peer.Endpoint()

	if err := e.ensureConnected(endpoint, peer.IPAddress, peer.Port); err != nil {
		return "", fmt.Errorf("transfer: connect to %s: %w", endpoint, err)
	}

	transferID := idgen.TransferID()
	record := store.Record{
		TransferID:   transferID,
		PeerID:       peerID,
		PeerName:     peer.DisplayName,
		PeerEndpoint: endpoint,
		Direction:    store.Outgoing,
		Status:       store.Initializing,
		FilePath:     filePath,
		FileName:     info.Name(),
		FileSize:     info.Size(),
		StartTime:    nowMillis(),
	}
	if err := e.table.Create(record); err != nil {
		return "", err
	}
	e.fireStatus(record)

	fileHash, err := hashFileAt(filePath)
	if err != nil {
		e.failTransfer(transferID, apperrors.ErrIO, fmt.Sprintf("failed to hash file: %v", err))
		return transferID, nil
	}
	req := &wire.TransferRequest{
		TransferID: transferID,
		SenderID:   e.selfID,
		SenderName: e.selfName,
		FileName:   record.FileName,
		FileSize:   uint64(record.FileSize),
		FileHash:   fileHash,
	}

	// Enter Waiting before the request goes out, so a TransferResponse
	// that arrives before sendMessage returns is not dropped by
	// handleTransferResponse's Waiting check.
	updated, _ := e.table.Mutate(transferID, func(r *store.Record) {
		r.ExpectedHash = fileHash
		r.Status = store.Waiting
	})
	e.fireStatus(updated)

	if err := e.sendMessage(endpoint, req); err != nil {
		e.failTransfer(transferID, apperrors.ErrNetwork, fmt.Sprintf("failed to send transfer request: %v", err))
		return transferID, nil
	}

	if e.cfg.HandshakeTimeout > 0 {
		go e.watchHandshakeTimeout(transferID, e.cfg.HandshakeTimeout)
	}

	return transferID, nil
}

// watchHandshakeTimeout implements SPEC_FULL.md §C (Open Question 5):
// an opt-in bound on how long an outgoing transfer may sit in Waiting
// for a TransferResponse before it is failed outright.
func (e *Engine) watchHandshakeTimeout(transferID string, timeout time.Duration) {
	time.Sleep(timeout)
	r, ok := e.table.Get(transferID)
	if !ok || r.Status != store.Waiting {
		return
	}
	e.failTransfer(transferID, apperrors.ErrProtocol, "handshake timed out waiting for transfer response")
}

func hashFileAt(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return crypto.HashFile(f)
}

// failTransfer transitions transferID to Failed and reports the
// failure on the best-effort diagnostic channel (internal/errors),
// classified by errType per spec §7's error categories. Nothing here
// blocks on that channel or depends on it being drained; the
// TransferRecord's ErrorMessage remains the source of truth callers
// observe through OnStatus.
func (e *Engine) failTransfer(transferID string, errType apperrors.ErrorType, message string) {
	updated, ok := e.table.Transition(transferID, store.Failed, func(r *store.Record) {
		r.ErrorMessage = message
	})
	e.buffers.Free(transferID)
	if ok {
		apperrors.New(errType, apperrors.ERROR, "transfer", message, nil)
		e.fireStatus(updated)
	}
}

// handleTransferResponse reacts to the peer's accept/reject decision,
// per spec §4.3 outgoing step 5, and if accepted starts streaming.
func (e *Engine) handleTransferResponse(m *wire.TransferResponse, record store.Record) {
	if record.Direction != store.Outgoing || record.Status != store.Waiting {
		return
	}
	if !m.Accepted {
		updated, ok := e.table.Transition(record.TransferID, store.Canceled, func(r *store.Record) {
			r.ErrorMessage = "transfer rejected by recipient"
		})
		if ok {
			apperrors.New(apperrors.ErrProtocol, apperrors.INFO, "transfer", "transfer rejected by recipient", nil)
			e.fireStatus(updated)
		}
		return
	}

	updated, ok := e.table.Transition(record.TransferID, store.InProgress, nil)
	if !ok {
		return
	}
	e.fireStatus(updated)
	go e.streamFile(updated)
}

// streamFile implements spec §4.3 outgoing step 6: read the whole
// file, encrypt it as a unit if enabled, chunk it, and send each chunk
// respecting cancellation and the configured inter-chunk delay.
func (e *Engine) streamFile(record store.Record) {
	data, err := os.ReadFile(record.FilePath)
	if err != nil {
		e.failTransfer(record.TransferID, apperrors.ErrIO, fmt.Sprintf("failed to read file: %v", err))
		return
	}

	if e.cfg.EncryptionEnabled {
		data, err = crypto.Encrypt(data, e.cfg.EncryptionPassword)
		if err != nil {
			e.failTransfer(record.TransferID, apperrors.ErrCrypto, fmt.Sprintf("failed to encrypt file: %v", err))
			return
		}
	}

	totalChunks := (len(data) + e.cfg.ChunkSize - 1) / e.cfg.ChunkSize
	if totalChunks == 0 {
		totalChunks = 1 // zero-byte file: a single empty chunk still completes the transfer.
	}

	for i := 0; i < totalChunks; i++ {
		if cur, ok := e.table.Get(record.TransferID); !ok || cur.Status.Terminal() {
			return
		}

		start := i * e.cfg.ChunkSize
		end := start + e.cfg.ChunkSize
		if end > len(data) {
			end = len(data)
		}

		chunk := &wire.FileData{
			TransferID:  record.TransferID,
			ChunkIndex:  uint32(i),
			TotalChunks: uint32(totalChunks),
			Data:        data[start:end],
		}
		if err := e.sendMessage(record.PeerEndpoint, chunk); err != nil {
			e.failTransfer(record.TransferID, apperrors.ErrNetwork, fmt.Sprintf("failed to send file data: %v", err))
			return
		}

		sent := int64(i+1) * record.FileSize / int64(totalChunks)
		if i == totalChunks-1 || sent > record.FileSize {
			sent = record.FileSize
		}
		updated, ok := e.table.Mutate(record.TransferID, func(r *store.Record) {
			r.BytesTransferred = sent
		})
		if ok {
			e.fireStatus(updated)
		}

		if e.cfg.InterChunkDelay > 0 && i < totalChunks-1 {
			time.Sleep(e.cfg.InterChunkDelay)
		}
	}

	complete := &wire.TransferComplete{
		TransferID: record.TransferID,
		Success:    true,
		FileHash:   record.ExpectedHash,
	}
	if err := e.sendMessage(record.PeerEndpoint, complete); err != nil {
		e.failTransfer(record.TransferID, apperrors.ErrNetwork, fmt.Sprintf("failed to send transfer complete: %v", err))
	}
	// The transfer stays InProgress until the peer's own TransferComplete
	// or TransferCancel is observed by handleTransferComplete/Cancel.
}
