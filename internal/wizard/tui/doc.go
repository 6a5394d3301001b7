// Package tui implements the full-screen terminal front end of the
// connection wizard.
//
// The UI holds no wizard state of its own. AppModel keeps the last
// wizard.Snapshot and re-reads it whenever the wizard signals an update;
// key presses become wizard actions run as tea.Cmds so slow calls never
// block rendering.
//
// # Screens
//
//   - Form: instance name and phone number inputs with inline field errors
//     and the remote error message of the last failed submit.
//   - Scanning: the QR code drawn with half-block characters, the pairing
//     code when the remote returns one, and a spinner while waiting for the
//     first code or for the phone to connect.
//   - Connected: confirmation with the option to link another number.
//
// All screens render through RenderApplicationContainer for a consistent
// header and help footer.
//
// # Usage Example
//
//	w := wizard.New(relay.NewClient(relayURL), wizard.Options{})
//	defer w.Close()
//
//	if err := tui.Run(ctx, w); err != nil {
//	    log.Fatal(err)
//	}
package tui
