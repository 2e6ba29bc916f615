package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	revokeProjectID string
	revokeKeyID     string
	revokeServerURL string
	revokeSecret    string
)

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an API key",
	RunE:  runRevoke,
}

func init() {
	revokeCmd.Flags().StringVar(&revokeProjectID, "project-id", "", "project the key belongs to (required)")
	revokeCmd.Flags().StringVar(&revokeKeyID, "key-id", "", "key identifier to revoke (required)")
	revokeCmd.Flags().StringVar(&revokeServerURL, "server", "http://127.0.0.1:8080", "keyforge server base URL")
	revokeCmd.Flags().StringVar(&revokeSecret, "admin-secret", "", "admin shared secret (required)")
	revokeCmd.MarkFlagRequired("project-id")
	revokeCmd.MarkFlagRequired("key-id")
	revokeCmd.MarkFlagRequired("admin-secret")
	rootCmd.AddCommand(revokeCmd)
}

func runRevoke(cmd *cobra.Command, args []string) error {
	client := newAdminClient(revokeServerURL, revokeSecret)
	body := map[string]string{
		"project_id": revokeProjectID,
		"key_id":     revokeKeyID,
	}

	respBody, status, err := client.do("POST", "/v1/revoke-key", body)
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("revoke-key failed: %s (status %d)", respBody, status)
	}

	var parsed struct {
		Revoked bool `json:"revoked"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Printf("revoked: %t\n", parsed.Revoked)
	return nil
}
