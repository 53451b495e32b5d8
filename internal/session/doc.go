// Package session coordinates reconciliation across the files of one run.
//
// A Session is the explicit context object a host creates per run. It
// caches one store per record file, decides when to reload and when to
// flush, wraps each reload-reconcile-flush cycle in a lock, and owns the
// run statistics and verbose sinks.
//
// LIFECYCLE:
//
//	sess, _ := session.New(session.WithLogger(logger))
//	defer sess.Close()
//	for each linted file:
//	    res, err := sess.Process(ctx, file, diags, resolver.Resolve(file))
//	report, err := sess.Finish(ctx) // exit sweep + usage summary
//
// CRITICAL PATTERNS:
//
// Every changed file is flushed immediately. There is no reliable
// end-of-run hook in a lint host, so nothing is batched across files.
//
// Under threadsafe the record is re-read inside the lock before every
// reconcile, so concurrent workers merge instead of overwriting each
// other. Without threadsafe the cached store is reused until Invalidate
// (or WatchRecords) marks it stale.
//
// Frozen and disabled policies never write, including during the sweep.
package session
