// Package bridge asks an external pdfme renderer to produce PDF documents.
//
// A Template (base document plus ordered field schemas) and an InputSet are
// serialized with Marshal into a deterministic JSON exchange format and
// handed to an Engine, which runs the renderer and returns the document
// bytes. Generator ties both together and adds logging, atomic file output
// and bounded concurrent generation of independent requests.
//
// Every failure is an *Error whose Kind tells serialization problems apart
// from renderer invocation failures, timeouts, cancellation and output I/O.
package bridge
