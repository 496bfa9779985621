package main

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"github.com/universa-net/ledgernode/crypto/keys"
)

var keygenOutputFile string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new Ed25519 node identity key",
	Long: `Generate a new Ed25519 key pair for use as a node's private_key_file.

The node's own identity is always Ed25519 (see the node config's
private_key_file); the generated key is written base58-encoded, the
same encoding the roster file and the admin rotation hook use for
public keys.`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenOutputFile, "output", "o", "", "output file (default: stdout)")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	kp, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	priv, ok := kp.PrivateKey().(ed25519.PrivateKey)
	if !ok {
		return fmt.Errorf("unexpected private key type %T", kp.PrivateKey())
	}
	encoded := base58.Encode(priv)

	if keygenOutputFile == "" {
		fmt.Println(encoded)
		pub := kp.PublicKey().(ed25519.PublicKey)
		fmt.Fprintf(os.Stderr, "public key (base58): %s\n", base58.Encode(pub))
		return nil
	}

	if err := os.WriteFile(keygenOutputFile, []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", keygenOutputFile, err)
	}
	pub := kp.PublicKey().(ed25519.PublicKey)
	fmt.Fprintf(os.Stderr, "wrote %s; public key (base58): %s\n", keygenOutputFile, base58.Encode(pub))
	return nil
}
