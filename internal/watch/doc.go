// Package watch runs the long-lived intake service. An fsnotify watcher
// queues arriving dataset files in the ledger once they settle, a periodic
// rescan catches events the watcher missed, and a claim loop drives each
// pending run through the calibration pipeline strictly one at a time.
// A file lock enforces a single service instance per configuration.
package watch
