// Package git maps document operations onto the git executable.
//
// Every git command runs as a subprocess on the repository's process queue,
// so at most one command touches a working copy at a time.
//
// # Architecture
//
// The package is organized around these core types:
//
//   - Registry: owns the live repositories, keyed by working copy path
//   - Handle: a reference-counted reference to a shared Repository
//   - Repository: branch, commit, merge, remote and history operations
//   - BranchWatcher: notices HEAD moving outside the engine
//   - PhaseEstimator: turns clone/fetch progress lines into a percentage
//
// # Usage
//
//	reg := git.NewRegistry(git.Config{AuthorName: "Ada", AuthorEmail: "ada@example.com"})
//	defer reg.Close()
//
//	h, err := reg.Acquire("/path/to/project")
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
//
//	if !h.Valid(ctx) {
//	    if err := h.Initialize(ctx); err != nil {
//	        return err
//	    }
//	}
//
//	if err := h.Write(ctx, "main.doc", doc); err != nil {
//	    return err
//	}
//	h.AppendWhatsNew("Reworded the introduction")
//	if err := h.Change(ctx, "main.doc"); err != nil {
//	    return err
//	}
//	commit, err := h.Commit(ctx, "", false)
//
// # Errors
//
// Operations return an error instead of a status flag. Failed commands wrap
// ErrCommandFailed and the raw git output is kept in Repository.Diagnostic.
// Outcomes git reports as failures but which leave nothing to do, such as
// "nothing to commit", are successes.
//
// # Asynchronous commands
//
// AsyncClone and AsyncFetch return idle processes. Register handlers, then
// dispatch them on the repository's queue:
//
//	p := h.AsyncFetch("origin")
//	git.ReportProgress(p, git.NewPhaseEstimator(), func(pct int, line string) { ... })
//	p.OnFinished(func(p *process.Process) { ... })
//	h.Queue().Dispatch(p, requestID)
//
// # Events
//
// Repository.Subscribe delivers commitSuccess and branchChanged events.
package git
