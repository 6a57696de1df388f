// Package api is the transport-independent entry point to the backup subsystem. Every
// operation checks the caller's role first, validates its request, then calls the backup
// manager or the schedule service and reports the outcome as a Response.
package api
