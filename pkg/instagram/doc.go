// Package instagram implements the Gateway used to read posts and comments
// and to send direct messages and comment replies.
//
// Two bindings exist. WebGateway drives the private web endpoints with
// session cookies and can log in with a session id or a password (with a
// backup code for second factor prompts). GraphGateway uses the official
// Graph API with a long-lived access token and can refresh it.
//
// Both bindings share Client, which returns typed pkg/errors values so that
// callers can classify rate limits, challenges and credential failures:
//
//	gw := instagram.NewWebGateway(cfg.Instagram, log)
//	posts, err := gw.FetchRecentPosts(ctx, 5)
//	if errors.Classify(err) == errors.ErrorTypeRateLimit {
//		governor.SignalRateLimited()
//	}
package instagram
