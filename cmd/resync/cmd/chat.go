package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/resync-ops/resync/internal/agent"
	"github.com/resync-ops/resync/internal/app"
	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/intent"
	"github.com/resync-ops/resync/internal/output"
	"github.com/resync-ops/resync/internal/session"
)

// chatOptions holds CLI flags for chat.
type chatOptions struct {
	sessionID string
	userID    string
	route     string
	format    string
}

func newChatCmd() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the assistant one question",
		Long: `Route one message through the assistant.

The intent classifier picks the handler: knowledge-base answers for
documentation questions, the tool-using agent for live plan questions,
the diagnostic engine for incident work. Follow-up messages in the
same session resolve references like "restart it" against earlier
turns.

Examples:
  resync chat "why did AWSBH001 fail with rc=8"
  resync chat "restart it" --session s1
  resync chat "status of CPU1" --route agentic`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runChat(ctx, cmd, a, message, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.sessionID, "session", "s", "", "Session id (empty starts a new session)")
	cmd.Flags().StringVarP(&opts.userID, "user", "u", "operator", "User id for memory and audit attribution")
	cmd.Flags().StringVarP(&opts.route, "route", "r", "", "Force a handler: rag_only, agentic, diagnostic")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runChat(ctx context.Context, cmd *cobra.Command, a *app.App, message string, opts chatOptions) error {
	out := output.New(cmd.OutOrStdout())

	sessionID := opts.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sess, err := a.Sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.IsNotFound(err) {
			return err
		}
		sess = session.New(sessionID, opts.userID)
	}

	// Conversational references resolve against earlier turns before
	// routing sees the query.
	query := message
	if resolved, ok := sess.ResolveReferences(query); ok {
		query = resolved
	}

	contextText := sess.ContextForPrompt(a.Config.Memory.MaxContextMessages)
	for _, hit := range a.Memory.Surface(ctx, opts.userID, query, 3) {
		contextText += "\nremembered: " + hit.Entry.Content
	}

	res, err := a.AgentRouter.Handle(ctx, agent.Request{
		Query:       query,
		UserID:      opts.userID,
		SessionID:   sessionID,
		ContextText: contextText,
		ForcedRoute: intent.Route(opts.route),
	})
	if err != nil {
		return err
	}

	sess.AddTurn(message, res.Response, string(res.Intent))
	if err := a.Sessions.Put(ctx, sess); err != nil {
		out.Warningf("session not saved: %v", err)
	}
	if _, err := a.Memory.Remember(ctx, sess); err != nil {
		out.Warningf("memory extraction failed: %v", err)
	}

	if opts.format == "json" {
		return out.JSON(res)
	}

	out.Status("", res.Response)
	out.Newline()
	detail := fmt.Sprintf("session %s | %s via %s | confidence %.2f",
		sessionID, res.Intent, res.RoutingMode, res.Confidence)
	if len(res.ToolsUsed) > 0 {
		detail += " | tools " + strings.Join(res.ToolsUsed, ",")
	}
	out.Status("💬", detail)

	if res.RequiresApproval {
		out.Warningf("action queued for approval (id %s); review with 'resync audit list'", res.ApprovalID)
	}
	return nil
}
