package bluetooth

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mil-ad/audioswitch/internal/clock"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultTimeout      = 5 * time.Second
)

// JobConfig bounds a routing job's retry loop.
type JobConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

func (c JobConfig) withDefaults() JobConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// job is one retry-until-confirmed-or-timeout attempt to move the audio path.
//
// A job is not safe for concurrent use. Every method, and every poll callback
// the job schedules, runs through exec, which the Router points at its own
// serialized dispatch.
type job struct {
	id      string
	dir     Direction
	clock   clock.Clock
	gateway RoutingGateway
	cfg     JobConfig
	log     *slog.Logger
	exec    func(func())

	begin   func()
	request func() error
	reached func() bool
	finish  func(Outcome)

	started   bool
	done      bool
	cancelled bool
	attempts  int
	deadline  time.Time
	timer     clock.Timer
	onDone    func(Outcome)
}

func newJob(dir Direction, c clock.Clock, gw RoutingGateway, cfg JobConfig, log *slog.Logger) job {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	return job{
		id:      id,
		dir:     dir,
		clock:   c,
		gateway: gw,
		cfg:     cfg.withDefaults(),
		log:     log.With("job", id, "direction", dir.String()),
		exec:    func(f func()) { f() },
	}
}

// Direction reports the routing state the job drives towards.
func (j *job) Direction() Direction { return j.dir }

// Attempts reports how many routing requests the job has issued.
func (j *job) Attempts() int { return j.attempts }

// Active reports whether the job has started and not yet finished or been
// cancelled.
func (j *job) Active() bool { return j.started && !j.done && !j.cancelled }

// Run starts the job. onDone is called once with the outcome unless the job
// is cancelled first. A job runs at most once.
func (j *job) Run(onDone func(Outcome)) error {
	if j.started {
		return ErrJobStarted
	}
	j.started = true
	j.onDone = onDone

	if j.reached() {
		j.log.Debug("routing already in target state")
		j.complete(OutcomeSucceeded)
		return nil
	}

	j.begin()
	j.deadline = j.clock.Now().Add(j.cfg.Timeout)
	j.attempt()
	j.schedule()
	return nil
}

// Cancel halts any pending poll and suppresses the job's outcome callback.
func (j *job) Cancel() {
	if !j.Active() {
		return
	}
	j.cancelled = true
	j.stopTimer()
	j.log.Debug("routing job cancelled", "attempts", j.attempts)
	j.finish(OutcomeSuperseded)
}

// Confirm completes the job successfully in response to a platform
// notification that the target state was reached.
func (j *job) Confirm() {
	if !j.Active() {
		return
	}
	j.stopTimer()
	j.complete(OutcomeSucceeded)
}

func (j *job) attempt() {
	j.attempts++
	if err := j.request(); err != nil {
		j.log.Warn("routing request failed", "attempt", j.attempts, "error", err)
		return
	}
	j.log.Debug("routing requested", "attempt", j.attempts)
}

// schedule arms the next poll, never later than the deadline.
func (j *job) schedule() {
	wait := min(j.cfg.PollInterval, j.deadline.Sub(j.clock.Now()))
	j.timer = j.clock.AfterFunc(wait, func() { j.exec(j.poll) })
}

func (j *job) poll() {
	if !j.Active() {
		return
	}
	j.timer = nil
	if j.reached() {
		j.complete(OutcomeSucceeded)
		return
	}
	if !j.clock.Now().Before(j.deadline) {
		j.complete(OutcomeTimedOut)
		return
	}
	j.attempt()
	j.schedule()
}

func (j *job) stopTimer() {
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
}

func (j *job) complete(outcome Outcome) {
	j.done = true
	if outcome == OutcomeTimedOut {
		j.log.Warn("routing job timed out", "attempts", j.attempts)
	} else {
		j.log.Info("routing job finished", "outcome", outcome, "attempts", j.attempts)
	}
	j.finish(outcome)
	if j.onDone != nil {
		j.onDone(outcome)
	}
}

// EnableJob drives the audio path to the headset. It acquires audio focus
// before its first request and releases it again if cancelled.
type EnableJob struct {
	job
	focused bool
}

// NewEnableJob returns an EnableJob ready to Run.
func NewEnableJob(c clock.Clock, gw RoutingGateway, cfg JobConfig, log *slog.Logger) *EnableJob {
	e := &EnableJob{job: newJob(Enabled, c, gw, cfg, log)}
	e.begin = e.acquireFocus
	e.request = gw.RequestEnable
	e.reached = gw.IsActive
	e.finish = e.onFinish
	return e
}

func (e *EnableJob) acquireFocus() {
	if err := e.gateway.AcquireFocus(); err != nil {
		e.log.Warn("acquire audio focus failed", "error", err)
		return
	}
	e.focused = true
}

func (e *EnableJob) onFinish(outcome Outcome) {
	if outcome != OutcomeSuperseded || !e.focused {
		return
	}
	if err := e.gateway.ReleaseFocus(); err != nil {
		e.log.Warn("release audio focus failed", "error", err)
	}
	e.focused = false
}

// DisableJob drives the audio path back to the built-in device and releases
// audio focus once the platform confirms.
type DisableJob struct {
	job
}

// NewDisableJob returns a DisableJob ready to Run.
func NewDisableJob(c clock.Clock, gw RoutingGateway, cfg JobConfig, log *slog.Logger) *DisableJob {
	d := &DisableJob{job: newJob(Disabled, c, gw, cfg, log)}
	d.begin = func() {}
	d.request = gw.RequestDisable
	d.reached = func() bool { return !gw.IsActive() }
	d.finish = d.onFinish
	return d
}

func (d *DisableJob) onFinish(outcome Outcome) {
	if outcome != OutcomeSucceeded {
		return
	}
	if err := d.gateway.ReleaseFocus(); err != nil {
		d.log.Warn("release audio focus failed", "error", err)
	}
}
