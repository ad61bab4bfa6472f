package application

import (
	"context"
	"fmt"

	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"
)

// Authorize asks authz whether actorID may perform action on storeID and
// turns a refusal into PERMISSION_DENIED.
func Authorize(ctx context.Context, authz domorder.Authorizer, actorID string, action domorder.Action, storeID string) error {
	if authz == nil {
		return nil
	}
	ok, err := authz.CanPerform(ctx, actorID, action, storeID)
	if err != nil {
		return fmt.Errorf("authorize %s: %w", action, err)
	}
	if !ok {
		return Denied(actorID, action, storeID)
	}
	return nil
}

func Denied(actorID string, action domorder.Action, storeID string) *apperr.Error {
	return apperr.WithMetadata(apperr.CodePermissionDenied,
		fmt.Sprintf("actor %q may not perform %s", actorID, action),
		map[string]string{"action": string(action), "store_id": storeID},
	)
}
