package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issues/internal/llm"
	"github.com/joescharf/issues/internal/models"
	"github.com/joescharf/issues/internal/output"
	"github.com/joescharf/issues/internal/tracker"
)

var (
	issueTitle      string
	issueText       string
	issueCreatedBy  string
	issueAssignedTo string
	issueStatusText string
	issueOpen       bool
	issueClosed     bool
	issueJSON       bool
)

// Flags of `issue add`, kept apart from the list/update flags that share names.
var (
	addTitle      string
	addText       string
	addCreatedBy  string
	addAssignedTo string
	addStatusText string
	addFrom       string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage project issues",
	Long:  "Create, list, update, close and delete the issues of a project.",
}

var issueAddCmd = &cobra.Command{
	Use:   "add <project>",
	Short: "Add a new issue",
	Long: `Add a new issue to a project.

--title and --text are required unless --from is given, in which case
missing title and text are drafted from the free-form notes by the LLM.
--by defaults to $USER.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context(), args[0])
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list <project>",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context(), args[0], issueListParams())
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <project> <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd.Context(), args[0], args[1])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <project> <issue-id>",
	Short: "Update an issue",
	Long: `Update the given fields of an issue. Only flags that are passed are
changed; an empty --assign or --status clears that field.

Updating an issue reopens it unless --closed is passed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd.Context(), args[0], issueUpdateRequest(cmd, args[1]))
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <project> <issue-id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		closed := false
		return issueUpdateRun(cmd.Context(), args[0], tracker.UpdateRequest{ID: args[1], Open: &closed})
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <project> <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue permanently",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(cmd.Context(), args[0], args[1])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&addTitle, "title", "", "Issue title")
	issueAddCmd.Flags().StringVar(&addText, "text", "", "Issue text")
	issueAddCmd.Flags().StringVar(&addCreatedBy, "by", "", "Reporter name (default $USER)")
	issueAddCmd.Flags().StringVar(&addAssignedTo, "assign", "", "Assignee")
	issueAddCmd.Flags().StringVar(&addStatusText, "status", "", "Free-form status text")
	issueAddCmd.Flags().StringVar(&addFrom, "from", "", "Draft title and text from these notes")

	issueListCmd.Flags().BoolVar(&issueOpen, "open", false, "Only open issues")
	issueListCmd.Flags().BoolVar(&issueClosed, "closed", false, "Only closed issues")
	issueListCmd.Flags().StringVar(&issueAssignedTo, "assigned-to", "", "Filter by assignee")
	issueListCmd.Flags().StringVar(&issueCreatedBy, "created-by", "", "Filter by reporter")
	issueListCmd.Flags().StringVar(&issueStatusText, "status-text", "", "Filter by status text")
	issueListCmd.Flags().BoolVar(&issueJSON, "json", false, "Print the issues as JSON")
	issueListCmd.MarkFlagsMutuallyExclusive("open", "closed")

	issueShowCmd.Flags().BoolVar(&issueJSON, "json", false, "Print the issue as JSON")

	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueText, "text", "", "New text")
	issueUpdateCmd.Flags().StringVar(&issueCreatedBy, "by", "", "New reporter name")
	issueUpdateCmd.Flags().StringVar(&issueAssignedTo, "assign", "", "New assignee (empty clears)")
	issueUpdateCmd.Flags().StringVar(&issueStatusText, "status", "", "New status text (empty clears)")
	issueUpdateCmd.Flags().BoolVar(&issueOpen, "open", false, "Reopen the issue")
	issueUpdateCmd.Flags().BoolVar(&issueClosed, "closed", false, "Close the issue")
	issueUpdateCmd.MarkFlagsMutuallyExclusive("open", "closed")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueCloseCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueAddRun(ctx context.Context, project string) error {
	req := tracker.CreateRequest{
		IssueTitle: addTitle,
		IssueText:  addText,
		CreatedBy:  addCreatedBy,
		AssignedTo: addAssignedTo,
		StatusText: addStatusText,
	}
	if req.CreatedBy == "" {
		req.CreatedBy = os.Getenv("USER")
	}

	if addFrom != "" && (req.IssueTitle == "" || req.IssueText == "") {
		draft, err := draftIssue(ctx, project, addFrom)
		if err != nil {
			return err
		}
		if req.IssueTitle == "" {
			req.IssueTitle = draft.IssueTitle
		}
		if req.IssueText == "" {
			req.IssueText = draft.IssueText
		}
	}

	if dryRun {
		ui.DryRunMsg("Would add issue to %s: %s", project, req.IssueTitle)
		return nil
	}

	svc, err := getService(ctx)
	if err != nil {
		return err
	}

	issue, err := svc.Create(ctx, project, req)
	if err != nil {
		if errors.Is(err, tracker.ErrMissingData) {
			return fmt.Errorf("%w: --title, --text and --by (or $USER) are required", err)
		}
		return fmt.Errorf("create issue: %w", err)
	}

	ui.Success("Created issue %s: %s", output.Cyan(shortID(issue.ID)), issue.IssueTitle)
	ui.VerboseLog("Full ID: %s", issue.ID)
	return nil
}

// draftIssue asks the LLM for a title and text from free-form notes.
func draftIssue(ctx context.Context, project, notes string) (*llm.DraftedIssue, error) {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("--from needs an Anthropic API key (set anthropic.api_key or ANTHROPIC_API_KEY)")
	}
	client := llm.NewClient(apiKey, viper.GetString("anthropic.model"))

	ui.VerboseLog("Drafting issue from %d characters of notes", len(notes))
	draft, err := client.DraftIssue(ctx, notes, project)
	if err != nil {
		return nil, fmt.Errorf("draft issue: %w", err)
	}
	return draft, nil
}

// issueListParams turns the list flags into the same query the REST API takes.
func issueListParams() url.Values {
	params := url.Values{}
	if issueOpen {
		params.Set(models.FieldOpen, "true")
	}
	if issueClosed {
		params.Set(models.FieldOpen, "false")
	}
	if issueAssignedTo != "" {
		params.Set(models.FieldAssignedTo, issueAssignedTo)
	}
	if issueCreatedBy != "" {
		params.Set(models.FieldCreatedBy, issueCreatedBy)
	}
	if issueStatusText != "" {
		params.Set(models.FieldStatusText, issueStatusText)
	}
	return params
}

func issueListRun(ctx context.Context, project string, params url.Values) error {
	svc, err := getService(ctx)
	if err != nil {
		return err
	}

	issues, err := svc.List(ctx, project, params)
	if err != nil {
		return err
	}

	if issueJSON {
		return ui.JSON(issues)
	}

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "State", "Assigned", "Status", "Updated"})
	for _, issue := range issues {
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.IssueTitle,
			output.OpenColor(issue.Open),
			issue.AssignedTo,
			issue.StatusText,
			output.Ago(issue.UpdatedOn),
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(ctx context.Context, project, ref string) error {
	svc, err := getService(ctx)
	if err != nil {
		return err
	}

	issue, err := findIssue(ctx, svc, project, ref)
	if err != nil {
		return err
	}

	if issueJSON {
		return ui.JSON(issue)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.IssueTitle)
	fmt.Fprintf(ui.Out, "  Project:    %s\n", project)
	fmt.Fprintf(ui.Out, "  State:      %s\n", output.OpenColor(issue.Open))
	fmt.Fprintf(ui.Out, "  Created by: %s\n", issue.CreatedBy)
	if issue.AssignedTo != "" {
		fmt.Fprintf(ui.Out, "  Assigned:   %s\n", issue.AssignedTo)
	}
	if issue.StatusText != "" {
		fmt.Fprintf(ui.Out, "  Status:     %s\n", issue.StatusText)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedOn.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s (%s)\n", issue.UpdatedOn.Format(time.RFC3339), output.Ago(issue.UpdatedOn))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)
	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, issue.IssueText)
	return nil
}

// issueUpdateRequest builds a partial update from the flags the user passed.
func issueUpdateRequest(cmd *cobra.Command, id string) tracker.UpdateRequest {
	req := tracker.UpdateRequest{ID: id}
	flags := cmd.Flags()
	if flags.Changed("title") {
		req.IssueTitle = &issueTitle
	}
	if flags.Changed("text") {
		req.IssueText = &issueText
	}
	if flags.Changed("by") {
		req.CreatedBy = &issueCreatedBy
	}
	if flags.Changed("assign") {
		req.AssignedTo = &issueAssignedTo
	}
	if flags.Changed("status") {
		req.StatusText = &issueStatusText
	}
	if flags.Changed("open") {
		open := issueOpen
		req.Open = &open
	}
	if flags.Changed("closed") {
		open := !issueClosed
		req.Open = &open
	}
	return req
}

func issueUpdateRun(ctx context.Context, project string, req tracker.UpdateRequest) error {
	svc, err := getService(ctx)
	if err != nil {
		return err
	}

	if !req.HasChanges() {
		return fmt.Errorf("no updates specified (use --title, --text, --by, --assign, --status, --open or --closed)")
	}

	issue, err := findIssue(ctx, svc, project, req.ID)
	if err != nil {
		return err
	}
	req.ID = issue.ID

	if dryRun {
		ui.DryRunMsg("Would update issue %s: %s", shortID(issue.ID), issue.IssueTitle)
		return nil
	}

	res, err := svc.Update(ctx, project, req)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("%s %s", res.Error, res.ID)
	}

	if req.Open != nil && !*req.Open {
		ui.Success("Closed issue %s: %s", output.Cyan(shortID(issue.ID)), issue.IssueTitle)
		return nil
	}
	ui.Success("Updated issue %s", output.Cyan(shortID(issue.ID)))
	return nil
}

func issueDeleteRun(ctx context.Context, project, ref string) error {
	svc, err := getService(ctx)
	if err != nil {
		return err
	}

	issue, err := findIssue(ctx, svc, project, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s", shortID(issue.ID), issue.IssueTitle)
		return nil
	}

	res, err := svc.Delete(ctx, project, tracker.DeleteRequest{ID: issue.ID})
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("%s %s", res.Error, res.ID)
	}

	ui.Success("Deleted issue %s: %s", output.Cyan(shortID(issue.ID)), issue.IssueTitle)
	return nil
}

// findIssue finds an issue of project by full ID or unique prefix.
func findIssue(ctx context.Context, svc *tracker.Service, project, ref string) (*models.Issue, error) {
	if ref == "" {
		return nil, tracker.ErrMissingID
	}
	issues, err := svc.List(ctx, project, url.Values{})
	if err != nil {
		return nil, err
	}

	var matches []*models.Issue
	for _, issue := range issues {
		if issue.ID == ref {
			return issue, nil
		}
		if len(ref) <= len(issue.ID) && strings.EqualFold(issue.ID[:len(ref)], ref) {
			matches = append(matches, issue)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("issue not found in %s: %s", project, ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous issue ID %s: matches %d issues", ref, len(matches))
	}
}

// shortID returns a truncated ID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
