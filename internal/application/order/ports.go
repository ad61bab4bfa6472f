package order

import (
	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type IDGenerator = application.IDGenerator

type Authorizer = domorder.Authorizer
