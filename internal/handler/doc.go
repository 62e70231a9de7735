// Package handler implements the game progress function: it turns an
// invocation Request (method, query parameters, body) into a Response by
// dispatching on the method and issuing at most two statements against a
// progress.Session opened for that invocation alone.
//
//   - OPTIONS answers the CORS preflight without touching the store.
//   - GET reads the player's row, creating a default one on first visit.
//   - POST applies a match report to an existing row; a missing row is a 404
//     and is never created on this path.
//   - Any other method is a 405.
//
// Store faults are returned as errors so the caller (HTTP adapter or CLI)
// can fail the invocation.
package handler
