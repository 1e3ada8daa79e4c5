// Package retry repeats gateway calls that fail transiently.
//
// Whether an error is retried is decided by its pkg/errors classification:
// rate limits and gateway outages are retried, authentication failures are
// not.
//
//	err := retry.Do(ctx, retry.Policy{Name: "token_refresh", Attempts: 3}, func(ctx context.Context) error {
//		return gateway.RefreshToken(ctx)
//	})
//
// FromRateLimit turns the rate_limit config section into the backoff the
// governor in pkg/ratelimit applies after Instagram throttles the account.
package retry
