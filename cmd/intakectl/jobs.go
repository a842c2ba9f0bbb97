package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"resident-intake/internal/audit"
	"resident-intake/internal/jobs"

	"github.com/spf13/cobra"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and requeue intake jobs",
	}

	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsRequeueCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	var (
		propertyID string
		status     string
		limit      int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs of a property by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ok := jobs.ParseStatus(status)
			if !ok {
				return fmt.Errorf("unknown status %q (want pending, processing, done or failed)", status)
			}
			db, _, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			q := jobs.NewQueue(jobs.NewPostgresRepo(db))
			return runJobsList(cmd.Context(), cmd.OutOrStdout(), q, propertyID, st, limit, asJSON)
		},
	}

	cmd.Flags().StringVarP(&propertyID, "property", "p", "", "property ID (required)")
	cmd.Flags().StringVarP(&status, "status", "s", string(jobs.StatusFailed), "job status to list")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	_ = cmd.MarkFlagRequired("property")
	return cmd
}

type jobLister interface {
	List(ctx context.Context, propertyID string, status jobs.Status, limit int) ([]jobs.Job, error)
}

func runJobsList(ctx context.Context, out io.Writer, q jobLister, propertyID string, status jobs.Status, limit int, asJSON bool) error {
	list, err := q.List(ctx, propertyID, status, limit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if asJSON {
		if list == nil {
			list = []jobs.Job{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	if len(list) == 0 {
		fmt.Fprintf(out, "No %s jobs\n", status)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tATTEMPTS\tUPDATED\tERROR")
	for _, j := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			j.ID, j.Kind, j.Status, j.Attempts, j.UpdatedAt.Format(time.RFC3339), truncate(j.ErrorMessage, 60))
	}
	return w.Flush()
}

func newJobsRequeueCmd() *cobra.Command {
	var (
		propertyID string
		actor      string
	)

	cmd := &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Move a failed job back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			q := jobs.NewQueue(jobs.NewPostgresRepo(db))
			trail := audit.NewService(audit.NewPostgresRepo(db))
			return runJobsRequeue(cmd.Context(), cmd.OutOrStdout(), q, trail, propertyID, args[0], actor)
		},
	}

	cmd.Flags().StringVarP(&propertyID, "property", "p", "", "property ID (required)")
	cmd.Flags().StringVar(&actor, "actor", os.Getenv("USER"), "operator name recorded in the audit trail")
	_ = cmd.MarkFlagRequired("property")
	return cmd
}

type jobRequeuer interface {
	Get(ctx context.Context, propertyID, id string) (jobs.Job, error)
	Requeue(ctx context.Context, propertyID, id string) error
}

type adminLogger interface {
	LogAdminAction(ctx context.Context, propertyID, actorUserID, actorRole, phone, message string) error
}

func runJobsRequeue(ctx context.Context, out io.Writer, q jobRequeuer, trail adminLogger, propertyID, jobID, actor string) error {
	job, err := q.Get(ctx, propertyID, jobID)
	if err != nil {
		return fmt.Errorf("requeue %s: %w", jobID, err)
	}
	if err := q.Requeue(ctx, propertyID, jobID); err != nil {
		return fmt.Errorf("requeue %s: %w", jobID, err)
	}
	if actor == "" {
		actor = "intakectl"
	}
	if err := trail.LogAdminAction(ctx, propertyID, actor, "operator", job.Phone, "requeued job "+jobID); err != nil {
		fmt.Fprintf(out, "warning: audit write failed: %v\n", err)
	}
	fmt.Fprintf(out, "Job %s requeued\n", jobID)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
