// Package discovery implements the Discovery Service of spec §4.2: a
// periodic UDP broadcast announcement and a peer table with a
// last-seen timeout sweep.
//
// The teacher used mDNS/DNS-SD (grandcat/zeroconf) for this concern;
// the spec fixes an explicit UDP-broadcast JSON envelope instead (see
// SPEC_FULL.md §B), so this package is a ground-up rewrite in the
// teacher's structural idiom (a long-lived service type with its own
// background goroutines and a mutex-guarded table) rather than an
// adaptation of discovery.go's zeroconf calls.
package discovery

import (
	"encoding/json"
	"log"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"lanshare/internal/config"
	apperrors "lanshare/internal/errors"
)

// PeerRecord is the identity of another instance on the LAN, per spec §3.
type PeerRecord struct {
	PeerID      string
	DisplayName string
	IPAddress   string
	Port        int
	Platform    string
	Version     string
	LastSeen    int64 // monotonic-wall-clock millisecond timestamp
}

func (p PeerRecord) Endpoint() string {
	return net.JoinHostPort(p.IPAddress, strconv.Itoa(p.Port))
}

// announcement is the JSON datagram shape of spec §6.2.
type announcement struct {
	Type      string `json:"type"`
	PeerID    string `json:"peerId"`
	Name      string `json:"name"`
	Port      int    `json:"port"`
	Platform  string `json:"platform"`
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

// UDPTransport is the subset of the Socket Service that Discovery
// needs; declared as an interface so tests can substitute a fake
// without a real UDP socket.
type UDPTransport interface {
	BindUDP(port int, onDatagram func(data []byte, sourceEndpoint string)) (int, error)
	BroadcastUDP(port int, data []byte) (int, error)
	UDPPort() int
}

type DiscoveredFunc func(peer PeerRecord, isNew bool)
type LostFunc func(peerID string)

// Service owns the peer table and the announce/sweep goroutines.
type Service struct {
	transport UDPTransport
	logger    *log.Logger
	cfg       *config.Config

	peerID string

	mu    sync.Mutex
	name  string
	peers map[string]PeerRecord

	onDiscovered DiscoveredFunc
	onLost       LostFunc

	port int

	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	nowFn func() int64
}

func New(transport UDPTransport, cfg *config.Config, peerID, displayName string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		transport: transport,
		logger:    logger,
		cfg:       cfg,
		peerID:    peerID,
		name:      displayName,
		peers:     make(map[string]PeerRecord),
		stopCh:    make(chan struct{}),
		nowFn:     nowMillis,
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func (s *Service) OnPeerDiscovered(fn DiscoveredFunc) {
	s.mu.Lock()
	s.onDiscovered = fn
	s.mu.Unlock()
}

func (s *Service) OnPeerLost(fn LostFunc) {
	s.mu.Lock()
	s.onLost = fn
	s.mu.Unlock()
}

// Start binds the UDP socket (picking a random port in [40000, 49999]
// when the configured port is the sentinel default, per spec §4.2),
// then launches the announce and sweep loops.
func (s *Service) Start() error {
	port := s.cfg.DiscoveryPort
	if port == config.DiscoveryPortSentinel {
		port = 40000 + rand.Intn(10000)
	}
	bound, err := s.transport.BindUDP(port, s.handleDatagram)
	if err != nil {
		return err
	}
	s.port = bound

	s.wg.Add(2)
	go s.announceLoop()
	go s.sweepLoop()
	return nil
}

func (s *Service) DiscoveryPort() int {
	return s.port
}

func (s *Service) announceLoop() {
	defer s.wg.Done()
	s.announceOnce()
	ticker := time.NewTicker(s.cfg.AnnouncementInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.announceOnce()
		}
	}
}

// AnnounceNow broadcasts a single announcement immediately, outside
// the periodic loop; SetDisplayName uses it (spec §4.2 "An immediate
// announcement is also emitted when the display name changes").
func (s *Service) AnnounceNow() {
	s.announceOnce()
}

func (s *Service) announceOnce() {
	s.mu.Lock()
	name := s.name
	s.mu.Unlock()

	msg := announcement{
		Type:      "announcement",
		PeerID:    s.peerID,
		Name:      name,
		Port:      s.cfg.TransferPort,
		Platform:  s.cfg.Platform,
		Version:   s.cfg.Version,
		Timestamp: s.nowFn(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("discovery: marshal announcement: %v", err)
		return
	}
	if _, err := s.transport.BroadcastUDP(s.port, data); err != nil {
		// Broadcast failures are logged but never stop the service,
		// per spec §4.2 failure semantics.
		apperrors.New(apperrors.ErrNetwork, apperrors.WARNING, "discovery", "broadcast failed", err)
		s.logger.Printf("discovery: broadcast failed: %v", err)
	}
}

func (s *Service) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	now := s.nowFn()
	var lost []string

	s.mu.Lock()
	for id, p := range s.peers {
		if now-p.LastSeen > s.cfg.TimeoutInterval.Milliseconds() {
			delete(s.peers, id)
			lost = append(lost, id)
		}
	}
	onLost := s.onLost
	s.mu.Unlock()

	if onLost != nil {
		for _, id := range lost {
			onLost(id)
		}
	}
}

func (s *Service) handleDatagram(data []byte, sourceEndpoint string) {
	var msg announcement
	if err := json.Unmarshal(data, &msg); err != nil {
		// Malformed datagrams are dropped silently, per spec §4.2.
		return
	}
	if msg.Type != "announcement" {
		return
	}
	if msg.PeerID == s.peerID {
		return
	}

	ip := stripPort(sourceEndpoint)

	record := PeerRecord{
		PeerID:      msg.PeerID,
		DisplayName: msg.Name,
		IPAddress:   ip,
		Port:        msg.Port,
		Platform:    msg.Platform,
		Version:     msg.Version,
		LastSeen:    s.nowFn(),
	}

	s.mu.Lock()
	_, existed := s.peers[msg.PeerID]
	s.peers[msg.PeerID] = record
	onDiscovered := s.onDiscovered
	s.mu.Unlock()

	if onDiscovered != nil {
		onDiscovered(record, !existed)
	}
}

func stripPort(endpoint string) string {
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		if i := strings.LastIndex(endpoint, ":"); i >= 0 {
			return endpoint[:i]
		}
		return endpoint
	}
	return host
}

// Peers returns a snapshot copy of the peer table.
func (s *Service) Peers() []PeerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PeerRecord, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// Peer looks up one peer by id.
func (s *Service) Peer(peerID string) (PeerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[peerID]
	return p, ok
}

// SetDisplayName updates the advertised name and immediately announces
// the change, per spec §4.2.
func (s *Service) SetDisplayName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	s.AnnounceNow()
}

func (s *Service) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Shutdown stops the announce and sweep loops. Idempotent, safe to call
// concurrently.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
