// Package controller implements the Controller Façade of spec §6.3:
// the single entry point a UI, CLI, or test harness drives. It owns
// construction and lifecycle of the Socket Service, Discovery Service
// and Transfer Engine and exposes their capabilities as one flat API.
package controller

import (
	"fmt"
	"log"

	"lanshare/internal/config"
	"lanshare/internal/discovery"
	"lanshare/internal/idgen"
	"lanshare/internal/platform"
	"lanshare/internal/socket"
	"lanshare/internal/transfer"
)

// Controller is the Controller Façade of spec §6.3.
type Controller struct {
	cfg    *config.Config
	logger *log.Logger

	sock      *socket.Service
	discovery *discovery.Service
	engine    *transfer.Engine
	plat      platform.Platform

	peerID string
}

// New wires the Socket Service, Discovery Service and Transfer Engine
// together but does not start them; call Start to bind sockets.
func New(cfg *config.Config, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = platform.Default().DefaultDownloadDir()
	}

	peerID := idgen.PeerID()
	sock := socket.New(logger)
	disc := discovery.New(sock, cfg, peerID, cfg.DisplayName, logger)
	engine := transfer.New(sock, disc, cfg, peerID, cfg.DisplayName, logger)

	return &Controller{
		cfg:       cfg,
		logger:    logger,
		sock:      sock,
		discovery: disc,
		engine:    engine,
		plat:      platform.Default(),
		peerID:    peerID,
	}
}

// Start binds the transfer TCP listener and the discovery UDP socket
// and begins announcing this peer on the LAN.
func (c *Controller) Start() error {
	if err := c.engine.Start(); err != nil {
		return fmt.Errorf("controller: start transfer engine: %w", err)
	}
	if err := c.discovery.Start(); err != nil {
		return fmt.Errorf("controller: start discovery: %w", err)
	}
	return nil
}

func (c *Controller) PeerID() string { return c.peerID }

// ListPeers returns every currently-known peer, per spec §6.3.
func (c *Controller) ListPeers() []discovery.PeerRecord {
	return c.discovery.Peers()
}

// SendFile starts an outgoing transfer, per spec §6.3.
func (c *Controller) SendFile(peerID, filePath string) (string, error) {
	return c.engine.SendFile(peerID, filePath)
}

// CancelTransfer cancels a transfer by id, per spec §6.3.
func (c *Controller) CancelTransfer(transferID string) bool {
	return c.engine.CancelTransfer(transferID, "")
}

// ListTransfers returns a snapshot of every transfer record, per spec §6.3.
func (c *Controller) ListTransfers() []transfer.Record {
	return c.engine.List()
}

func (c *Controller) SetDisplayName(name string) {
	c.cfg.DisplayName = name
	c.discovery.SetDisplayName(name)
}

func (c *Controller) DisplayName() string {
	return c.discovery.DisplayName()
}

func (c *Controller) SetDownloadDir(path string) {
	c.cfg.DownloadDir = path
}

func (c *Controller) DownloadDir() string {
	return c.cfg.DownloadDir
}

func (c *Controller) SetEncryptionEnabled(enabled bool) {
	c.cfg.EncryptionEnabled = enabled
}

func (c *Controller) SetEncryptionPassword(password string) {
	c.cfg.EncryptionPassword = password
}

func (c *Controller) OnStatus(fn func(transfer.Record)) {
	c.engine.OnStatus(fn)
}

func (c *Controller) OnRequest(fn func(transfer.Record) bool) {
	c.engine.OnRequest(fn)
}

func (c *Controller) OnPeerDiscovered(fn func(peer discovery.PeerRecord, isNew bool)) {
	c.discovery.OnPeerDiscovered(fn)
}

func (c *Controller) OnPeerLost(fn func(peerID string)) {
	c.discovery.OnPeerLost(fn)
}

// LocalAddress reports the LAN-facing address this instance is
// reachable at, via the out-of-scope Platform collaborator.
func (c *Controller) LocalAddress() (string, error) {
	ip, err := c.plat.LocalIPv4()
	if err != nil {
		return "", err
	}
	return ip.String(), nil
}

// OpenDownloadedFile shells out to the OS opener for path, via the
// out-of-scope Platform collaborator.
func (c *Controller) OpenDownloadedFile(path string) error {
	return c.plat.OpenFile(path)
}

// Shutdown tears down the transfer engine, discovery service and
// socket reactor, in that order, per spec §6.3.
func (c *Controller) Shutdown() {
	c.engine.Shutdown()
	c.discovery.Shutdown()
	c.sock.Shutdown()
}
