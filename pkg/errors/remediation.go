package errors

// Remediation returns operator-facing guidance for an error type. It is meant
// for the boundary that logs or prints the failure, never for control flow.
func Remediation(errorType ErrorType) string {
	switch errorType {
	case ErrorTypeInvalidCredentials:
		return "check the configured username and password (IGDMBOT_INSTAGRAM_USERNAME / IGDMBOT_INSTAGRAM_PASSWORD)"
	case ErrorTypeSecondFactorRequired:
		return "two-factor authentication is enabled: set an unused backup code (IGDMBOT_INSTAGRAM_BACKUP_CODE) or re-extract a session identifier (IGDMBOT_INSTAGRAM_SESSION_ID)"
	case ErrorTypeBackupCodeRejected:
		return "the backup code was already used or has expired: regenerate backup codes in the Instagram security settings and configure a fresh one"
	case ErrorTypeChallengeRequired:
		return "Instagram wants manual verification: log in from a browser, approve the challenge, then re-extract the session identifier"
	case ErrorTypeRateLimit:
		return "the account is being rate limited: wait before retrying and consider raising the configured delays"
	case ErrorTypeSessionCorrupt:
		return "the stored session could not be read: delete the session files so a fresh login is performed"
	case ErrorTypeGatewayUnavailable, ErrorTypeNetwork, ErrorTypeServerError:
		return "Instagram could not be reached: check network connectivity and try again later"
	default:
		return "check the logs for details; run with --log-level debug for more output"
	}
}
