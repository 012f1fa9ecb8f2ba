package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lanshare/internal/discovery"
	"lanshare/internal/transfer"
)

func newServeCmd() *cobra.Command {
	var autoAccept bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for peers and incoming transfers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController(cmd)
			if err != nil {
				return err
			}
			defer ctrl.Shutdown()

			fmt.Printf("goshare: advertising as %q, downloads go to %s\n", ctrl.DisplayName(), ctrl.DownloadDir())

			ctrl.OnPeerDiscovered(func(peer discovery.PeerRecord, isNew bool) {
				if isNew {
					fmt.Printf("peer discovered: %s (%s) at %s\n", peer.DisplayName, peer.PeerID, peer.Endpoint())
				}
			})
			ctrl.OnPeerLost(func(peerID string) {
				fmt.Printf("peer lost: %s\n", peerID)
			})
			ctrl.OnRequest(func(r transfer.Record) bool {
				if autoAccept {
					fmt.Printf("auto-accepting %q from %s (%d bytes)\n", r.FileName, r.PeerName, r.FileSize)
					return true
				}
				fmt.Printf("incoming file %q from %s (%d bytes) — accepting\n", r.FileName, r.PeerName, r.FileSize)
				return true
			})
			ctrl.OnStatus(func(r transfer.Record) {
				fmt.Printf("[%s] %s %s -> %.0f%%\n", r.TransferID[:8], r.Direction, r.Status, r.ProgressPct())
			})

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			fmt.Println("shutting down...")
			return nil
		},
	}
	cmd.Flags().BoolVar(&autoAccept, "auto-accept", true, "label incoming transfers as auto-accepted; every transfer is accepted either way, there is no prompt")
	return cmd
}
