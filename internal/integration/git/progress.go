package git

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/dshills/docsync/internal/integration/process"
)

// PercentEstimator turns progress lines printed by git into an overall
// completion percentage.
type PercentEstimator interface {
	// Feed consumes one output line. It returns the new overall percentage
	// and true when the line carried progress information.
	Feed(line string) (int, bool)

	// Reset forgets all progress.
	Reset()
}

// Phase is one step of a transfer with its share of the total.
type Phase struct {
	Name    string
	Pattern *regexp.Regexp
	Weight  int
}

// TransferPhases are the phases git reports during clone and fetch. Nearly
// all of the time is spent receiving objects.
var TransferPhases = []Phase{
	{Name: "compressing", Pattern: regexp.MustCompile(`Compressing objects:\s+(\d+)%`), Weight: 5},
	{Name: "receiving", Pattern: regexp.MustCompile(`Receiving objects:\s+(\d+)%`), Weight: 94},
	{Name: "resolving", Pattern: regexp.MustCompile(`Resolving deltas:\s+(\d+)%`), Weight: 1},
}

// PhaseEstimator is a PercentEstimator over an ordered list of phases.
// Reaching a phase completes every phase before it. The reported
// percentage never decreases.
type PhaseEstimator struct {
	mu     sync.Mutex
	phases []Phase
	done   []int
	total  int
	last   int
}

// NewPhaseEstimator creates an estimator. Without phases it uses TransferPhases.
func NewPhaseEstimator(phases ...Phase) *PhaseEstimator {
	if len(phases) == 0 {
		phases = TransferPhases
	}
	e := &PhaseEstimator{phases: phases, done: make([]int, len(phases))}
	for _, p := range phases {
		e.total += p.Weight
	}
	return e
}

// Feed implements PercentEstimator.
func (e *PhaseEstimator) Feed(line string) (int, bool) {
	for i, phase := range e.phases {
		m := phase.Pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pct, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		if pct > 100 {
			pct = 100
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		for j := 0; j < i; j++ {
			e.done[j] = 100
		}
		e.done[i] = pct
		if overall := e.overallLocked(); overall > e.last {
			e.last = overall
		}
		return e.last, true
	}
	return 0, false
}

func (e *PhaseEstimator) overallLocked() int {
	if e.total == 0 {
		return 0
	}
	sum := 0
	for i, p := range e.phases {
		sum += p.Weight * e.done[i]
	}
	return sum / e.total
}

// Reset implements PercentEstimator.
func (e *PhaseEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.done {
		e.done[i] = 0
	}
	e.last = 0
}

// ReportProgress feeds the stderr lines of p to est and calls fn with every
// line and the current percentage, or -1 when the line carried none.
// It must be called before p is dispatched.
func ReportProgress(p *process.Process, est PercentEstimator, fn func(percent int, line string)) {
	p.OnOutput(func(_ *process.Process, s process.Stream, line string) {
		if s != process.Stderr {
			return
		}
		pct, ok := est.Feed(line)
		if !ok {
			pct = -1
		}
		fn(pct, line)
	})
}
