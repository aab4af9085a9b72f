// Package httputil holds the JSON envelope and query helpers shared by the
// admin API handlers.
package httputil
