package auth

import (
	"fmt"
	"io"
	"strings"

	igerrors "igdmbot/pkg/errors"
)

// PrintSessionIDInstructions explains how to copy the sessionid cookie from
// a logged-in browser, which sidesteps challenges and second factor prompts.
func PrintSessionIDInstructions(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, "📚 USING A BROWSER SESSION ID")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "🌐 STEP 1: Log in at https://www.instagram.com in your browser")
	fmt.Fprintln(w, "   - Complete any security check Instagram shows you")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "🔧 STEP 2: Open Developer Tools")
	fmt.Fprintln(w, "   • Chrome/Edge/Brave/Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "   • Safari: enable the Develop menu, then Cmd+Option+I")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "🍪 STEP 3: Application (Chrome) or Storage (Firefox) → Cookies → https://www.instagram.com")
	fmt.Fprintln(w, "   - Copy the value of the 'sessionid' cookie")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "🔑 STEP 4: Store it")
	fmt.Fprintln(w, "   igdmbot auth set session_id")
	fmt.Fprintln(w, "   or export IGDMBOT_INSTAGRAM_SESSION_ID=...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "⚠️  The session id gives full access to the account. Never share it.")
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

// PrintFailure prints a classified authentication failure with its
// remediation, adding the session id walkthrough where it helps.
func PrintFailure(w io.Writer, r Result) {
	if r.OK() {
		return
	}
	fmt.Fprintf(w, "❌ Authentication failed (%s)\n", r.Reason)
	if r.Err != nil {
		fmt.Fprintf(w, "   %v\n", r.Err)
	}
	fmt.Fprintf(w, "💡 %s\n\n", igerrors.Remediation(r.Reason))

	switch r.Reason {
	case igerrors.ErrorTypeChallengeRequired, igerrors.ErrorTypeSecondFactorRequired, igerrors.ErrorTypeBackupCodeRejected:
		PrintSessionIDInstructions(w)
	}
}
