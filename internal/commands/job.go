package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-reconciler/internal/jobs"
)

func newJobCommand() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show the status of a background categorization job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(server, args[0])
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "base URL of the reconciliation API")

	return cmd
}

func runJob(server, jobID string) error {
	resp, err := http.Get(fmt.Sprintf("%s/api/jobs/%s", server, jobID))
	if err != nil {
		return fmt.Errorf("fetching job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching job: server returned %s", resp.Status)
	}

	var view jobs.StatusView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return fmt.Errorf("decoding job status: %w", err)
	}
	return printJSON(view)
}
