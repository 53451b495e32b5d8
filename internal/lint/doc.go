// Package lint defines the diagnostics seatbelt reconciles and the host
// report format it reads them from.
//
// Reports use the ESLint JSON formatter shape: an array of
// {filePath, messages, suppressedMessages}. Parsed reports are validated
// with go-playground/validator before reconciliation.
package lint
