package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type auditLine struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	ActorID   string            `json:"actor_id"`
	Action    string            `json:"action"`
	Before    string            `json:"before"`
	After     string            `json:"after"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// newAuditCommand prints the trail with operator privileges; store grants are not consulted.
func newAuditCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit ORDER_ID",
		Short: "Print the audit trail of an order as JSON lines, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				entries, err := a.recorder.List(ctx, args[0])
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "no audit entries for %s\n", args[0])
					return nil
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, e := range entries {
					if err := enc.Encode(auditLine{
						ID:        e.ID,
						OrderID:   e.OrderID,
						ActorID:   e.ActorID,
						Action:    e.Action,
						Before:    e.Before,
						After:     e.After,
						Metadata:  e.Metadata,
						CreatedAt: e.CreatedAt,
					}); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
