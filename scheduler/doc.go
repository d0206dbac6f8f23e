// Package scheduler runs named periodic tasks, such as expiring idle
// sessions, on behalf of the long-lived components that must not schedule
// themselves.
//
// Every task runs in its own goroutine and is invoked once per interval.
// Invocations of one task never overlap. Task
// errors are logged and never stop the task. Tasks can be cancelled
// individually by name or all at once with Stop, which waits for running
// invocations to return.
package scheduler
