// Package midea implements a client for the Midea appliance cloud.
//
// The cloud speaks form-encoded POST requests signed with the application
// key and answers with a JSON envelope carrying an error code. The client
// owns the login session and serialises every call behind one mutex so the
// signing timestamp and retry state of one request are never interleaved
// with another.
//
// Non-success error codes are mapped to recovery actions by RecoveryFor.
// Recoverable codes (session expiry and friends) trigger a re-login and a
// bounded retry of the original request; a device-offline code and unknown
// codes are returned to the caller as *Error values carrying a Kind.
//
// Device commands travel through the "transparent" endpoint: raw frame bytes
// are rendered as signed decimal text, AES-ECB encrypted with a key derived
// from the session's access token, and hex encoded.
//
// Basic usage:
//
//	client, err := midea.NewClient(midea.Config{AppKey: key, Email: email, Password: pw})
//	appliances, err := client.ListAppliances(ctx, "")
//	reply, err := client.SendTransparentCommand(ctx, appliances[0].ID, frame)
package midea
