// Package lock provides advisory locks that serialize record file updates
// across processes.
//
// FileLock creates "<record>.lock" with O_CREATE|O_EXCL and writes a JSON
// marker naming the holder's PID, owner session and creation time. The
// marker is removed on release. A marker whose process has exited, or
// which is older than the stale threshold, is removed by the next
// contender.
//
// The lock is advisory: tools that ignore it are not excluded.
package lock
