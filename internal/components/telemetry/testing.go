package telemetry

import (
	"strings"
	"sync"
)

// Report is a single call recorded by TestAPI.
type Report struct {
	Level  string
	Id     string
	Params []any
}

// TestAPI is an API that records every report, it is meant for tests to assert
// that a component reports what it should.
type TestAPI struct {
	mutex   sync.Mutex
	reports []Report
	counts  map[string]int64
}

func NewTestAPI() *TestAPI {
	return &TestAPI{counts: map[string]int64{}}
}

func (t *TestAPI) record(level, id string, params []any) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.reports = append(t.reports, Report{Level: level, Id: id, Params: params})
}

func (t *TestAPI) ReportBroken(id string, params ...any) {
	t.record("broken", id, params)
}

func (t *TestAPI) ReportWarning(id string, params ...any) {
	t.record("warning", id, params)
}

func (t *TestAPI) ReportInfo(msg string, params ...any) {
	t.record("info", msg, params)
}

func (t *TestAPI) ReportDebug(msg string, params ...any) {
	t.record("debug", msg, params)
}

func (t *TestAPI) ReportCount(id string, count int64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.counts[id] = count
}

// Reports returns the recorded reports of the given level whose id ends with `suffix`.
// An empty level matches any level.
func (t *TestAPI) Reports(level, suffix string) []Report {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var out []Report
	for _, r := range t.reports {
		if level != "" && r.Level != level {
			continue
		}
		if !strings.HasSuffix(r.Id, suffix) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Count returns the last value reported for a count id (matched by suffix).
func (t *TestAPI) Count(suffix string) (int64, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for id, n := range t.counts {
		if strings.HasSuffix(id, suffix) {
			return n, true
		}
	}
	return 0, false
}
