// Command goshare is the process entry point of spec §1's "process
// entry point" out-of-scope collaborator: a Cobra CLI standing in for
// the graphical front-end, driving the Controller Façade exactly as
// any other client would.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "goshare",
		Short: "LAN-local peer-to-peer file transfer",
	}

	root.PersistentFlags().String("name", "", "display name advertised to peers (default: hostname)")
	root.PersistentFlags().String("download-dir", "", "directory incoming files are written to")
	root.PersistentFlags().Int("transfer-port", 0, "TCP port for transfer sessions (0: use default)")
	root.PersistentFlags().Int("discovery-port", 0, "UDP port for peer discovery (0: pick randomly)")
	root.PersistentFlags().Bool("encrypt", false, "enable AES-256-GCM encryption of outgoing and decryption of incoming files")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSendCmd())
	root.AddCommand(newPeersCmd())
	root.AddCommand(newTransfersCmd())
	return root
}
