// Package state persists scheduler job records across process
// restarts. Three interchangeable stores are provided: flat JSON files
// on disk, a SQL database and a bbolt file. Records are keyed by job
// signature hash and scoped to an application identity derived from
// the working directory, executable path and argv, so several
// applications can share one backing store without mixing state.
package state

import (
	"github.com/taskmill/taskmill/pkg/sched"
)

// jobState is the persisted unit for one job: its last run record and
// whether it was disabled when last saved.
type jobState struct {
	Logs     sched.RecordView `json:"logs"`
	Disabled bool             `json:"disabled"`
}

func capture(j *sched.Job) jobState {
	return jobState{Logs: j.Record(), Disabled: j.IsDisabled()}
}

func apply(j *sched.Job, st jobState) {
	j.RestoreSnapshot(st.Logs, st.Disabled)
}
