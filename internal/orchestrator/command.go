package orchestrator

import (
	"strconv"
	"time"

	"github.com/XR-at-CISESS/lma-data/internal/lmafile"
)

// Job is one batch of input files handed to one worker process.
type Job struct {
	Key       string
	Network   string // empty when the batch spans networks
	Timestamp time.Time
	Paths     []string
}

// JobsFrom turns record batches into jobs. A batch's timestamp is that of its
// first record.
func JobsFrom[T lmafile.Record](batches [][]T) []Job {
	jobs := make([]Job, 0, len(batches))
	for _, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		job := Job{
			Timestamp: batch[0].Timestamp(),
			Network:   batch[0].Network(),
			Paths:     make([]string, 0, len(batch)),
		}
		for _, rec := range batch {
			if rec.Network() != job.Network {
				job.Network = ""
			}
			job.Paths = append(job.Paths, rec.Path())
		}
		job.Key = lmafile.FormatStamp(job.Timestamp)
		if job.Network != "" {
			job.Key = job.Network + "/" + job.Key
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// Label is the tag printed in front of streamed worker output.
func (j Job) Label() string {
	return j.Timestamp.UTC().Format(time.DateTime)
}

// Command describes how a worker is invoked:
//
//	<exe> -d YYYYMMDD -t HHMMSS [-s seconds] [-o outDir] <args...> <paths...>
type Command struct {
	Executable string
	OutDir     string
	Duration   int // seconds; omitted when zero
	Args       []string
}

// Argv returns the worker arguments for job, excluding the executable.
func (c Command) Argv(job Job) []string {
	ts := job.Timestamp.UTC()
	argv := []string{"-d", ts.Format(lmafile.DateLayout), "-t", ts.Format(lmafile.TimeLayout)}
	if c.Duration > 0 {
		argv = append(argv, "-s", strconv.Itoa(c.Duration))
	}
	if c.OutDir != "" {
		argv = append(argv, "-o", c.OutDir)
	}
	argv = append(argv, c.Args...)
	return append(argv, job.Paths...)
}
