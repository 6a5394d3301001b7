// Package urls holds the documentation links shown in troubleshooting
// hints and in the wizard, so they can be updated in one place.
package urls
