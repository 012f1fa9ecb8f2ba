package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lanshare/internal/config"
	"lanshare/internal/controller"
)

// newController builds and starts a Controller from the persistent
// flags shared by every subcommand.
func newController(cmd *cobra.Command) (*controller.Controller, error) {
	cfg := config.Default()

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		if host, err := os.Hostname(); err == nil {
			name = host
		} else {
			name = "goshare-peer"
		}
	}
	cfg.DisplayName = name

	if dir, _ := cmd.Flags().GetString("download-dir"); dir != "" {
		cfg.DownloadDir = dir
	}
	if port, _ := cmd.Flags().GetInt("transfer-port"); port != 0 {
		cfg.TransferPort = port
	}
	if port, _ := cmd.Flags().GetInt("discovery-port"); port != 0 {
		cfg.DiscoveryPort = port
	}

	encrypt, _ := cmd.Flags().GetBool("encrypt")
	if encrypt {
		password, err := promptPassword("Encryption password: ")
		if err != nil {
			return nil, err
		}
		cfg.EncryptionEnabled = true
		cfg.EncryptionPassword = password
	}

	ctrl := controller.New(cfg, nil)
	if err := ctrl.Start(); err != nil {
		return nil, fmt.Errorf("start controller: %w", err)
	}
	return ctrl, nil
}

// promptPassword reads a password from the terminal without echoing
// it, per spec §4.4's password-derived key material.
func promptPassword(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	bytePw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytePw), nil
}
