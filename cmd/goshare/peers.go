package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPeersCmd() *cobra.Command {
	var listenFor time.Duration
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "Listen for a while and print discovered peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController(cmd)
			if err != nil {
				return err
			}
			defer ctrl.Shutdown()

			time.Sleep(listenFor)

			peers := ctrl.ListPeers()
			if len(peers) == 0 {
				fmt.Println("no peers discovered")
				return nil
			}
			for _, p := range peers {
				fmt.Printf("%s\t%s\t%s\t%s\n", p.PeerID, p.DisplayName, p.Endpoint(), p.Platform)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&listenFor, "for", 6*time.Second, "how long to listen for announcements")
	return cmd
}
