package notification

import (
	"context"
	"time"

	domnotif "github.com/Zhima-Mochi/minishop-orders/internal/domain/notification"
)

// RetryingSender retries a persistent channel under a RetryPolicy. It stops
// early on success, on a skipped delivery and on non-retryable failures.
type RetryingSender struct {
	next   domnotif.Sender
	policy domnotif.RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRetryingSender(next domnotif.Sender, policy domnotif.RetryPolicy) *RetryingSender {
	return &RetryingSender{
		next:   next,
		policy: policy.Normalize(),
		sleep:  sleepContext,
	}
}

func (s *RetryingSender) Send(ctx context.Context, ch domnotif.Channel, r domnotif.Recipient, msg domnotif.Message) domnotif.DeliveryResult {
	res, _ := s.SendCounting(ctx, ch, r, msg)
	return res
}

// SendCounting is Send that also reports how many attempts were made.
func (s *RetryingSender) SendCounting(ctx context.Context, ch domnotif.Channel, r domnotif.Recipient, msg domnotif.Message) (domnotif.DeliveryResult, int) {
	var res domnotif.DeliveryResult
	for attempt := 1; ; attempt++ {
		res = s.next.Send(ctx, ch, r, msg)
		if res.OK || res.Err == nil || !res.Retryable || attempt >= s.policy.MaxAttempts {
			return res, attempt
		}
		if err := s.sleep(ctx, s.policy.Delay(attempt)); err != nil {
			return domnotif.Failed(err, false), attempt
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
