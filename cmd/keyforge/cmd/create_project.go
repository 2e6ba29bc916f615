package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	createProjectID     string
	createProjectLabel  string
	createProjectOwner  string
	createProjectServer string
	createProjectSecret string
)

var createProjectCmd = &cobra.Command{
	Use:   "create-project",
	Short: "Register a new project",
	RunE:  runCreateProject,
}

func init() {
	createProjectCmd.Flags().StringVar(&createProjectID, "project-id", "", "project identifier (required)")
	createProjectCmd.Flags().StringVar(&createProjectLabel, "label", "", "human-readable project label")
	createProjectCmd.Flags().StringVar(&createProjectOwner, "owner", "", "project owner")
	createProjectCmd.Flags().StringVar(&createProjectServer, "server", "http://127.0.0.1:8080", "keyforge server base URL")
	createProjectCmd.Flags().StringVar(&createProjectSecret, "admin-secret", "", "admin shared secret (required)")
	createProjectCmd.MarkFlagRequired("project-id")
	createProjectCmd.MarkFlagRequired("admin-secret")
	rootCmd.AddCommand(createProjectCmd)
}

func runCreateProject(cmd *cobra.Command, args []string) error {
	client := newAdminClient(createProjectServer, createProjectSecret)

	query := url.Values{}
	query.Set("project_id", createProjectID)
	query.Set("label", createProjectLabel)
	query.Set("owner", createProjectOwner)

	respBody, status, err := client.do("POST", "/v1/admin/create-project?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	if status != 201 {
		return fmt.Errorf("create-project failed: %s (status %d)", respBody, status)
	}

	var parsed struct {
		ProjectID string `json:"project_id"`
		Label     string `json:"label"`
		Owner     string `json:"owner"`
		CreatedAt float64 `json:"created_at"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Printf("created project %s (label=%q owner=%q)\n", parsed.ProjectID, parsed.Label, parsed.Owner)
	return nil
}
