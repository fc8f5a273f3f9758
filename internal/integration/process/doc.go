// Package process runs external commands on behalf of the version-control layer.
//
// The package has three pieces:
//
//   - Process wraps one invocation of an external command. Output is captured
//     incrementally into bounded buffers and can be observed chunk by chunk.
//   - Launcher builds the exec.Cmd for a Command, injecting whatever
//     environment the backend needs on the current platform.
//   - Queue serializes processes so that only one of them runs at a time
//     against a working copy.
//
// # Synchronous use
//
//	p := process.New(process.Command{Name: "git", Args: []string{"status"}, Dir: root})
//	res, err := p.Run(ctx)
//	if err != nil {
//	    // res.Stderr holds the diagnostics
//	}
//
// # Queued use
//
//	q := process.NewQueue()
//	p := process.New(cmd)
//	p.OnFinished(func(p *process.Process) { ... })
//	q.Dispatch(p, "")
//
// A queued process is started when every process dispatched before it has
// finished or been aborted. Queue.Abort removes a waiting process or kills a
// running one and immediately starts the next entry.
//
// # Thread Safety
//
// Process and Queue are safe for concurrent use. Completion handlers run on
// the goroutine that waited for the process and must not call Wait on the
// process they were registered on.
package process
