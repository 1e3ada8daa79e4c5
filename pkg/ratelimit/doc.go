// Package ratelimit paces calls to the Instagram gateway.
//
// TokenBucket and SlidingWindow are the building blocks. Governor combines
// them with jittered delays and an exponential backoff that is raised when
// the service signals a rate limit. KeyedLimiter is a per-key fixed window
// used to protect the webhook endpoint.
package ratelimit
