package auth

import "errors"

// Fixed operation errors. Error() strings are shown to the user as-is, which
// is why they read as sentences rather than lowercase error fragments.
var (
	// ErrAppleUnsupported indicates Apple Sign-In was requested off-platform.
	ErrAppleUnsupported = errors.New("Apple Sign In is only available on iOS devices")
	// ErrSignInCanceled indicates the user dismissed the platform sign-in prompt.
	ErrSignInCanceled = errors.New("Sign in was canceled")
	// ErrNoIdentityToken indicates the platform completed sign-in without
	// producing an identity token.
	ErrNoIdentityToken = errors.New("No identity token received")
	// ErrBadOTPLength rejects a one-time code locally before any network call.
	ErrBadOTPLength = errors.New("Please enter a 6-digit code")
)
