// Package wizard implements the connection wizard: a three step state
// machine that creates an Evolution API instance, shows its QR code and
// waits until the phone is paired.
//
//	form --Submit--> scanning --status "open"--> connected
//	  ^                 |                            |
//	  +-----Cancel------+                            |
//	  +-----------------Restart----------------------+
//
// While scanning, a background loop checks the connection status every
// Options.PollInterval. The loop belongs to the scanning step and is
// stopped on every way out of it. Results that arrive after the user left
// the step are dropped.
//
// The wizard talks to the relay through Backend; relay.Client is the
// production implementation. Front ends (the terminal UI, the headless
// connect command) call the action methods and re-render from Snapshot
// whenever Updates fires.
package wizard
