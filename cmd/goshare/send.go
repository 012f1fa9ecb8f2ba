package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"lanshare/internal/discovery"
	"lanshare/internal/store"
	"lanshare/internal/transfer"
)

func newSendCmd() *cobra.Command {
	var waitFor time.Duration
	cmd := &cobra.Command{
		Use:   "send <peer-id-or-name> <file>",
		Short: "Send a file to a discovered peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController(cmd)
			if err != nil {
				return err
			}
			defer ctrl.Shutdown()

			peerID, err := resolvePeer(ctrl, args[0], waitFor)
			if err != nil {
				return err
			}

			done := make(chan transfer.Record, 1)
			var bar *progressbar.ProgressBar
			ctrl.OnStatus(func(r transfer.Record) {
				if bar == nil && r.Status == store.InProgress {
					bar = progressbar.DefaultBytes(r.FileSize, r.FileName)
				}
				if bar != nil {
					bar.Set64(r.BytesTransferred)
				}
				if r.Status.Terminal() {
					select {
					case done <- r:
					default:
					}
				}
			})

			transferID, err := ctrl.SendFile(peerID, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("transfer %s started\n", transferID)

			result := <-done
			fmt.Println()
			switch result.Status {
			case store.Completed:
				fmt.Println("transfer completed")
			case store.Canceled:
				fmt.Printf("transfer canceled: %s\n", result.ErrorMessage)
			case store.Failed:
				fmt.Printf("transfer failed: %s\n", result.ErrorMessage)
				return fmt.Errorf("transfer failed")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&waitFor, "wait", 5*time.Second, "how long to wait for the peer to be discovered")
	return cmd
}

// resolvePeer matches ref against known peer ids or display names,
// polling the discovery table until it appears or waitFor elapses.
func resolvePeer(ctrl interface {
	ListPeers() []discovery.PeerRecord
}, ref string, waitFor time.Duration) (string, error) {
	deadline := time.Now().Add(waitFor)
	for {
		for _, p := range ctrl.ListPeers() {
			if p.PeerID == ref || p.DisplayName == ref {
				return p.PeerID, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no peer matching %q discovered within %s", ref, waitFor)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
