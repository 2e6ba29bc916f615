package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	mintProjectID string
	mintOwner     string
	mintMetadata  string
	mintServerURL string
	mintSecret    string
)

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a new API key for a project",
	RunE:  runMint,
}

func init() {
	mintCmd.Flags().StringVar(&mintProjectID, "project-id", "", "project the key belongs to (required)")
	mintCmd.Flags().StringVar(&mintOwner, "owner", "", "owner label for the key")
	mintCmd.Flags().StringVar(&mintMetadata, "metadata", "", "opaque metadata attached to the key")
	mintCmd.Flags().StringVar(&mintServerURL, "server", "http://127.0.0.1:8080", "keyforge server base URL")
	mintCmd.Flags().StringVar(&mintSecret, "admin-secret", "", "admin shared secret (required)")
	mintCmd.MarkFlagRequired("project-id")
	mintCmd.MarkFlagRequired("admin-secret")
	rootCmd.AddCommand(mintCmd)
}

func runMint(cmd *cobra.Command, args []string) error {
	client := newAdminClient(mintServerURL, mintSecret)
	body := map[string]string{
		"project_id": mintProjectID,
		"owner":      mintOwner,
		"metadata":   mintMetadata,
	}

	respBody, status, err := client.do("POST", "/v1/mint-key", body)
	if err != nil {
		return err
	}
	if status != 201 {
		return fmt.Errorf("mint-key failed: %s (status %d)", respBody, status)
	}

	var parsed struct {
		APIKey string `json:"api_key"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Println(parsed.APIKey)
	return nil
}
