package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for common billing support workflows.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("access_investigation").
		Description("Work out why a user does or does not have a feature, and fix it if the records are wrong.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			user := args["user_id"]
			if user == "" {
				user = "the current user"
			}
			feature := args["feature"]
			if feature == "" {
				feature = "recipe_access"
			}
			return userPrompt("Access Investigation", fmt.Sprintf(`A customer reports a problem with %s for %s.

1. Call billing.has_feature for the feature and read the reason.
2. Call billing.status and billing.entitlements to see the subscription row and standalone grants.
3. Call billing.history to confirm what was actually paid or refunded.

If a payment succeeded but no grant exists, the webhook was probably unresolved:
check user.find with the customer's email for duplicate accounts, and replay
the event with billing.webhook once the directory is fixed.

Only use billing.grant when the history proves the purchase, and put the
payment reference in the note.`, feature, user)), nil
		})

	srv.Prompt("refund_review").
		Description("Check that a refund removed the access it should have, and nothing else.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return userPrompt("Refund Review", `Review a refunded customer:

1. billing.history should show a refund entry for the charge.
2. billing.entitlements should no longer list recipe_access or pdf_downloads.
3. billing.status should show the premium display row canceled, while a
   recurring subscription, if any, is untouched.

Report any mismatch with the event ids involved.`), nil
		})

	srv.Prompt("quota_review").
		Description("Explain a user's monthly usage against their plan limits.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return userPrompt("Quota Review", `Summarise this month's usage:

1. Read the saffron://billing/usage resource.
2. Call billing.check_quota for recipeViewsPerMonth, pdfExportsPerMonth,
   recipesCreatedPerMonth, recipesSharedPerMonth and collectionsCreatedPerMonth.

List which limits are exhausted, which are unlimited, and when the counters
reset (the first day of next month, UTC).`), nil
		})

	return nil
}

func userPrompt(description, text string) *mcp.PromptResult {
	return &mcp.PromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role: string(mcp.RoleUser),
				Content: mcp.TextContent{
					Type: "text",
					Text: text,
				},
			},
		},
	}
}
