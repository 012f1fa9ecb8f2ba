package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lanshare/internal/transfer"
)

func newTransfersCmd() *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "Serve while printing a live transfer table, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController(cmd)
			if err != nil {
				return err
			}
			defer ctrl.Shutdown()

			ctrl.OnRequest(func(transfer.Record) bool { return true })
			ctrl.OnStatus(func(r transfer.Record) {
				fmt.Printf("[%s] %-8s %-12s %6.1f%%  %s\n", r.TransferID[:8], r.Direction, r.Status, r.ProgressPct(), r.FileName)
			})

			time.Sleep(watch)

			fmt.Println("--- final state ---")
			for _, r := range ctrl.ListTransfers() {
				fmt.Printf("[%s] %-8s %-12s %6.1f%%  %s\n", r.TransferID[:8], r.Direction, r.Status, r.ProgressPct(), r.FileName)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 30*time.Second, "how long to observe transfers before exiting")
	return cmd
}
