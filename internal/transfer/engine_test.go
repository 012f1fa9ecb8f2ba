package transfer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lanshare/internal/config"
	"lanshare/internal/discovery"
	"lanshare/internal/socket"
	"lanshare/internal/store"
)

// loopbackPair links two sideTransports so a sender Engine and a
// receiver Engine can exchange framed wire messages without a real
// socket, exercising the exact bytes internal/wire produces.
type loopbackPair struct {
	aOnBytes, bOnBytes   socket.BytesHandler
	aOnStatus, bOnStatus socket.StatusHandler
}

type sideTransport struct {
	pair             *loopbackPair
	isA              bool
	remoteEndpoint   string // what this side dials/records as the peer's endpoint
	selfAsSeenByPeer string // the endpoint string the peer sees this side as
}

func (s *sideTransport) ListenTCP(port int, onBytes socket.BytesHandler, onStatus socket.StatusHandler) error {
	if s.isA {
		s.pair.aOnBytes, s.pair.aOnStatus = onBytes, onStatus
	} else {
		s.pair.bOnBytes, s.pair.bOnStatus = onBytes, onStatus
	}
	return nil
}

func (s *sideTransport) DialTCP(host string, port int, onBytes socket.BytesHandler, onStatus socket.StatusHandler) error {
	if s.isA {
		s.pair.aOnBytes, s.pair.aOnStatus = onBytes, onStatus
	} else {
		s.pair.bOnBytes, s.pair.bOnStatus = onBytes, onStatus
	}
	onStatus(socket.Connected, s.remoteEndpoint, nil)
	return nil
}

func (s *sideTransport) SendTCP(endpoint string, data []byte) (int, error) {
	if s.isA {
		if s.pair.bOnBytes != nil {
			s.pair.bOnBytes(data, s.selfAsSeenByPeer)
		}
	} else {
		if s.pair.aOnBytes != nil {
			s.pair.aOnBytes(data, s.selfAsSeenByPeer)
		}
	}
	return len(data), nil
}

// CloseConn is a no-op in the loopback pair: no test in this file drives
// a protocol violation, so there is nothing to tear down.
func (s *sideTransport) CloseConn(endpoint string) {}

type fakePeerResolver struct {
	peers map[string]discovery.PeerRecord
}

func (f *fakePeerResolver) Peer(id string) (discovery.PeerRecord, bool) {
	p, ok := f.peers[id]
	return p, ok
}

// newLoopbackPair builds a connected sender/receiver Engine pair with
// no real network I/O, per the sideTransport bridging above.
func newLoopbackPair(t *testing.T, downloadDir string) (sender, receiver *Engine) {
	t.Helper()
	pair := &loopbackPair{}

	senderTransport := &sideTransport{pair: pair, isA: true, remoteEndpoint: "receiver:34568", selfAsSeenByPeer: "sender:5000"}
	receiverTransport := &sideTransport{pair: pair, isA: false, selfAsSeenByPeer: "receiver:34568"}

	senderCfg := config.Default()
	senderCfg.InterChunkDelay = 0
	senderResolver := &fakePeerResolver{peers: map[string]discovery.PeerRecord{
		"receiver-id": {PeerID: "receiver-id", DisplayName: "receiver", IPAddress: "receiver", Port: 34568},
	}}
	sender = New(senderTransport, senderResolver, senderCfg, "sender-id", "sender", nil)

	receiverCfg := config.Default()
	receiverCfg.InterChunkDelay = 0
	receiverCfg.DownloadDir = downloadDir
	receiver = New(receiverTransport, &fakePeerResolver{}, receiverCfg, "receiver-id", "receiver", nil)

	if err := receiver.Start(); err != nil {
		t.Fatalf("receiver.Start: %v", err)
	}
	return sender, receiver
}

func waitForStatus(t *testing.T, e *Engine, transferID string, want store.Status, timeout time.Duration) store.Record {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		r, ok := e.Get(transferID)
		if ok && r.Status == want {
			return r
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for transfer %s to reach %v, last seen %+v", transferID, want, r)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func writeTempFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSendFileEndToEndCompletes(t *testing.T) {
	tmp := t.TempDir()
	sender, receiver := newLoopbackPair(t, filepath.Join(tmp, "downloads"))

	srcPath := writeTempFile(t, tmp, "hello.txt", []byte("hello, lan-local world"))

	transferID, err := sender.SendFile("receiver-id", srcPath)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	senderFinal := waitForStatus(t, sender, transferID, store.Completed, time.Second)
	if senderFinal.BytesTransferred != senderFinal.FileSize {
		t.Fatalf("sender BytesTransferred = %d, want %d", senderFinal.BytesTransferred, senderFinal.FileSize)
	}

	recvFinal := waitForStatus(t, receiver, transferID, store.Completed, time.Second)
	got, err := os.ReadFile(recvFinal.FilePath)
	if err != nil {
		t.Fatalf("ReadFile received file: %v", err)
	}
	if string(got) != "hello, lan-local world" {
		t.Fatalf("received content = %q, want %q", got, "hello, lan-local world")
	}
}

func TestSendFileRejectedByReceiver(t *testing.T) {
	tmp := t.TempDir()
	sender, receiver := newLoopbackPair(t, filepath.Join(tmp, "downloads"))
	receiver.OnRequest(func(store.Record) bool { return false })

	srcPath := writeTempFile(t, tmp, "reject-me.txt", []byte("nope"))
	transferID, err := sender.SendFile("receiver-id", srcPath)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	senderFinal := waitForStatus(t, sender, transferID, store.Canceled, time.Second)
	if senderFinal.ErrorMessage == "" {
		t.Fatalf("expected a non-empty ErrorMessage on rejection")
	}
}

func TestSendFileZeroByteFile(t *testing.T) {
	tmp := t.TempDir()
	sender, receiver := newLoopbackPair(t, filepath.Join(tmp, "downloads"))

	srcPath := writeTempFile(t, tmp, "empty.bin", []byte{})
	transferID, err := sender.SendFile("receiver-id", srcPath)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	waitForStatus(t, sender, transferID, store.Completed, time.Second)
	recvFinal := waitForStatus(t, receiver, transferID, store.Completed, time.Second)

	info, err := os.Stat(recvFinal.FilePath)
	if err != nil {
		t.Fatalf("Stat received file: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("received file size = %d, want 0", info.Size())
	}
}

func TestSendFileUnknownPeer(t *testing.T) {
	tmp := t.TempDir()
	sender, _ := newLoopbackPair(t, filepath.Join(tmp, "downloads"))
	srcPath := writeTempFile(t, tmp, "f.txt", []byte("x"))

	if _, err := sender.SendFile("no-such-peer", srcPath); err == nil {
		t.Fatalf("SendFile to unknown peer: expected error, got nil")
	}
}

func TestCancelTransferIsIdempotent(t *testing.T) {
	tmp := t.TempDir()
	sender, _ := newLoopbackPair(t, filepath.Join(tmp, "downloads"))
	// Detach the receiver so the request goes unanswered and the
	// transfer is still active when it is canceled.
	sender.transport.(*sideTransport).pair.bOnBytes = nil
	srcPath := writeTempFile(t, tmp, "f.txt", []byte("cancel me"))

	transferID, err := sender.SendFile("receiver-id", srcPath)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	if !sender.CancelTransfer(transferID, "test cancel") {
		t.Fatalf("first CancelTransfer: expected true")
	}
	if sender.CancelTransfer(transferID, "test cancel again") {
		t.Fatalf("second CancelTransfer on an already-terminal transfer: expected false")
	}
	r, _ := sender.Get(transferID)
	if r.Status != store.Canceled {
		t.Fatalf("Status = %v, want Canceled", r.Status)
	}
}

func TestConnectionLossFailsActiveTransfers(t *testing.T) {
	tmp := t.TempDir()
	sender, _ := newLoopbackPair(t, filepath.Join(tmp, "downloads"))
	// Detach the receiver so the request goes unanswered and the
	// transfer stays in Waiting until the connection drops.
	sender.transport.(*sideTransport).pair.bOnBytes = nil
	srcPath := writeTempFile(t, tmp, "f.txt", []byte("in flight"))

	transferID, err := sender.SendFile("receiver-id", srcPath)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	waitForStatus(t, sender, transferID, store.Waiting, time.Second)

	sender.onConnStatus(socket.Disconnected, "receiver:34568", nil)

	r, _ := sender.Get(transferID)
	if r.Status != store.Failed {
		t.Fatalf("Status after connection loss = %v, want Failed", r.Status)
	}
}
