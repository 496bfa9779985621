package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

var (
	rotateEndpoint  string
	rotateSecret    string
	rotateClientKey string
	rotateTokenTTL  time.Duration
)

var rotateCmd = &cobra.Command{
	Use:   "rotate-key",
	Short: "Trigger a client key rotation through a node's admin hook",
	Long: `Sign a short-lived HS256 bearer token with the node's configured
admin_rotation.bearer_secret and POST it to /admin/rotate, forcing the
named client_key to re-handshake before its next command.`,
	RunE: runRotate,
}

func init() {
	rootCmd.AddCommand(rotateCmd)
	rotateCmd.Flags().StringVar(&rotateEndpoint, "endpoint", "http://127.0.0.1:8443", "node base URL")
	rotateCmd.Flags().StringVar(&rotateSecret, "secret", "", "admin_rotation.bearer_secret (required)")
	rotateCmd.Flags().StringVar(&rotateClientKey, "client-key", "", "client public key, base58-encoded (required)")
	rotateCmd.Flags().DurationVar(&rotateTokenTTL, "token-ttl", time.Minute, "bearer token lifetime")
	_ = rotateCmd.MarkFlagRequired("secret")
	_ = rotateCmd.MarkFlagRequired("client-key")
}

type rotateRequestBody struct {
	ClientKey string `json:"client_key"`
}

func runRotate(cmd *cobra.Command, args []string) error {
	claims := jwt.MapClaims{"exp": time.Now().Add(rotateTokenTTL).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(rotateSecret))
	if err != nil {
		return fmt.Errorf("sign bearer token: %w", err)
	}

	body, err := json.Marshal(rotateRequestBody{ClientKey: rotateClientKey})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, rotateEndpoint+"/admin/rotate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("rotate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rotate request failed: %s: %s", resp.Status, respBody)
	}

	fmt.Println("rotation accepted")
	return nil
}
