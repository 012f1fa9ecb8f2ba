package discovery

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"lanshare/internal/config"
)

// fakeTransport is an in-memory UDPTransport: BroadcastUDP loops the
// datagram straight back to a registered handler, so tests never open
// a real socket.
type fakeTransport struct {
	mu      sync.Mutex
	handler func(data []byte, sourceEndpoint string)
	sent    [][]byte
}

func (f *fakeTransport) BindUDP(port int, onDatagram func(data []byte, sourceEndpoint string)) (int, error) {
	f.mu.Lock()
	f.handler = onDatagram
	f.mu.Unlock()
	return 40000, nil
}

func (f *fakeTransport) BroadcastUDP(port int, data []byte) (int, error) {
	f.mu.Lock()
	f.sent = append(f.sent, data)
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(data, "10.0.0.9:40001")
	}
	return len(data), nil
}

func (f *fakeTransport) UDPPort() int { return 40000 }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.AnnouncementInterval = time.Hour
	cfg.SweepInterval = time.Hour
	cfg.TimeoutInterval = 50 * time.Millisecond
	return cfg
}

func TestServiceIgnoresSelfAnnouncement(t *testing.T) {
	transport := &fakeTransport{}
	svc := New(transport, testConfig(), "self-id", "self-name", nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Shutdown()

	var discovered int
	svc.OnPeerDiscovered(func(p PeerRecord, isNew bool) { discovered++ })

	svc.AnnounceNow() // loops back with our own peer id
	if discovered != 0 {
		t.Fatalf("discovered = %d after self-announcement, want 0", discovered)
	}
}

func TestHandleDatagramDiscoversPeer(t *testing.T) {
	transport := &fakeTransport{}
	svc := New(transport, testConfig(), "self-id", "self-name", nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Shutdown()

	var got PeerRecord
	var isNew bool
	svc.OnPeerDiscovered(func(p PeerRecord, n bool) { got = p; isNew = n })

	msg := announcement{Type: "announcement", PeerID: "peer-2", Name: "bob", Port: 34568, Platform: "go", Version: "1.0.0", Timestamp: 1}
	data, _ := json.Marshal(msg)
	transport.handler(data, "192.168.1.5:9999")

	if !isNew {
		t.Fatalf("isNew = false on first sighting, want true")
	}
	if got.PeerID != "peer-2" || got.IPAddress != "192.168.1.5" || got.Port != 34568 {
		t.Fatalf("discovered record = %+v", got)
	}

	peers := svc.Peers()
	if len(peers) != 1 {
		t.Fatalf("Peers() length = %d, want 1", len(peers))
	}
}

func TestHandleDatagramMalformedIsDropped(t *testing.T) {
	transport := &fakeTransport{}
	svc := New(transport, testConfig(), "self-id", "self-name", nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Shutdown()

	called := false
	svc.OnPeerDiscovered(func(PeerRecord, bool) { called = true })

	transport.handler([]byte("not json"), "10.0.0.1:1")
	if called {
		t.Fatalf("malformed datagram triggered OnPeerDiscovered")
	}
}

func TestSweepEvictsStalePeer(t *testing.T) {
	transport := &fakeTransport{}
	cfg := testConfig()
	svc := New(transport, cfg, "self-id", "self-name", nil)

	fakeNow := int64(1000)
	svc.nowFn = func() int64 { return fakeNow }

	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Shutdown()

	var lost string
	svc.OnPeerLost(func(id string) { lost = id })

	msg := announcement{Type: "announcement", PeerID: "peer-3", Name: "carol", Port: 1, Timestamp: fakeNow}
	data, _ := json.Marshal(msg)
	transport.handler(data, "10.0.0.2:1")

	fakeNow += cfg.TimeoutInterval.Milliseconds() + 1
	svc.sweep()

	if lost != "peer-3" {
		t.Fatalf("lost peer id = %q, want peer-3", lost)
	}
	if _, ok := svc.Peer("peer-3"); ok {
		t.Fatalf("evicted peer still present in table")
	}
}

func TestSetDisplayNameAnnouncesImmediately(t *testing.T) {
	transport := &fakeTransport{}
	svc := New(transport, testConfig(), "self-id", "old-name", nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Shutdown()

	before := len(transport.sent)
	svc.SetDisplayName("new-name")
	if len(transport.sent) != before+1 {
		t.Fatalf("SetDisplayName sent %d announcements, want 1 more", len(transport.sent)-before)
	}
	if svc.DisplayName() != "new-name" {
		t.Fatalf("DisplayName() = %q, want new-name", svc.DisplayName())
	}
}
