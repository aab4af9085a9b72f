// Package mailing turns one message plus per-recipient variables into a
// provider batch: it renders the %recipient.<field>% placeholders for every
// recipient, attaches correlation tags and hands the result to the selected
// provider adapter in a single call.
package mailing
