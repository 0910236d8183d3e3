package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"voxscribe/internal/audio"
	"voxscribe/internal/capture"
	"voxscribe/internal/domain"
	"voxscribe/internal/metrics"
	"voxscribe/internal/ports"
	"voxscribe/internal/vad"
)

const (
	ownerListener = "voice_listener"
	ownerCapture  = "capture_session"
)

// VoiceListener is the onset detector the orchestrator arms in
// auto_voice_activation mode.
type VoiceListener interface {
	Start(lease *audio.Lease, hooks vad.ListenerHooks) error
	Stop()
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Microphone  *audio.Microphone
	Listener    VoiceListener
	Recorder    *capture.Recorder
	Detector    vad.Classifier
	Transcriber ports.Transcriber
	Output      ports.OutputDispatcher
	Events      ports.EventSink
	Chime       ports.Chime
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Config is the orchestrator's slice of the configuration snapshot.
type Config struct {
	Mode                 domain.RecordingMode
	SilenceDuration      time.Duration
	MinDuration          time.Duration
	MaxDuration          time.Duration
	TranscriptionTimeout time.Duration
}

// Orchestrator is the recording state machine. All transitions run on the
// goroutine executing Run; blocking work happens on worker goroutines that
// report back through the event queue.
type Orchestrator struct {
	mic         *audio.Microphone
	listener    VoiceListener
	recorder    *capture.Recorder
	detector    vad.Classifier
	transcriber ports.Transcriber
	events      ports.EventSink
	finalizer   transcriptFinalizer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	cfg         Config

	queue    *eventQueue
	loopDone chan struct{}
	workers  sync.WaitGroup

	statusMu sync.Mutex
	started  bool
	status   domain.SessionState

	// owned by the control goroutine
	ctx                 context.Context
	state               domain.SessionState
	armed               bool
	gen                 uint64
	session             *capture.Session
	maxTimer            *time.Timer
	cancelTranscription context.CancelFunc
}

func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModePressToToggle
	}
	if cfg.TranscriptionTimeout <= 0 {
		cfg.TranscriptionTimeout = 60 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		mic:         deps.Microphone,
		listener:    deps.Listener,
		recorder:    deps.Recorder,
		detector:    deps.Detector,
		transcriber: deps.Transcriber,
		events:      deps.Events,
		finalizer: transcriptFinalizer{
			output:  deps.Output,
			events:  deps.Events,
			chime:   deps.Chime,
			metrics: deps.Metrics,
			logger:  logger,
			now:     time.Now,
		},
		metrics:  deps.Metrics,
		logger:   logger,
		cfg:      cfg,
		queue:    newEventQueue(),
		loopDone: make(chan struct{}),
		ctx:      context.Background(),
		state:    domain.SessionStateIdle,
		status:   domain.SessionStateIdle,
	}
}

// Run executes the control loop until Shutdown is called or ctx is done.
// It may be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.statusMu.Lock()
	if o.started || o.queue.isClosed() {
		o.statusMu.Unlock()
		return domain.ErrClosed
	}
	o.started = true
	o.statusMu.Unlock()

	o.ctx = ctx
	defer close(o.loopDone)

	o.logger.Info("orchestrator running", slog.String("mode", string(o.cfg.Mode)))
	for {
		select {
		case <-ctx.Done():
			o.handle(event{trigger: triggerShutdown})
			o.drain()
			return nil
		case <-o.queue.notify:
			for {
				ev, ok := o.queue.pop()
				if !ok {
					break
				}
				o.handle(ev)
				if ev.reply != nil {
					close(ev.reply)
				}
				if o.state == domain.SessionStateCancelled {
					o.drain()
					return nil
				}
			}
		}
	}
}

// Activate delivers an activation (hotkey press).
func (o *Orchestrator) Activate() error { return o.submit(triggerActivate) }

// Deactivate delivers a deactivation (hotkey release).
func (o *Orchestrator) Deactivate() error { return o.submit(triggerDeactivate) }

// Stop ends the current recording and, in the looping modes, the loop.
func (o *Orchestrator) Stop() error { return o.submit(triggerStop) }

// Cancel abandons whatever is in progress without producing output.
func (o *Orchestrator) Cancel() error { return o.submit(triggerCancel) }

// Shutdown moves to Cancelled, releases the microphone and waits for
// in-flight dispatches. It is safe to call more than once.
func (o *Orchestrator) Shutdown() {
	o.statusMu.Lock()
	if !o.started {
		o.queue.close()
		o.statusMu.Unlock()
		return
	}
	o.statusMu.Unlock()

	o.queue.push(event{trigger: triggerShutdown})
	<-o.loopDone
}

// Status returns the current runtime status.
func (o *Orchestrator) Status() domain.Status {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	return domain.Status{
		State:  o.status,
		Mode:   o.cfg.Mode,
		Active: o.status == domain.SessionStateListening || o.status == domain.SessionStateRecording || o.status == domain.SessionStateTranscribing,
	}
}

func (o *Orchestrator) submit(t trigger) error {
	reply := make(chan struct{})
	if !o.queue.push(event{trigger: t, reply: reply}) {
		return domain.ErrClosed
	}
	select {
	case <-reply:
		return nil
	case <-o.loopDone:
		return domain.ErrClosed
	}
}

func (o *Orchestrator) post(ev event) {
	o.queue.push(ev)
}

// drain closes the queue, releases pending callers and waits for workers.
func (o *Orchestrator) drain() {
	for _, ev := range o.queue.close() {
		if ev.reply != nil {
			close(ev.reply)
		}
	}
	o.workers.Wait()
	o.logger.Info("orchestrator stopped")
}

func (o *Orchestrator) handle(ev event) {
	if ev.trigger.internal() && ev.gen != o.gen {
		o.logger.Debug("stale event dropped", slog.String("trigger", ev.trigger.String()))
		return
	}

	act := decide(o.cfg.Mode, o.state, ev.trigger)
	o.logger.Debug("orchestrator event",
		slog.String("state", string(o.state)),
		slog.String("trigger", ev.trigger.String()),
		slog.String("action", act.String()),
	)

	switch act {
	case actionIgnore:
	case actionArmListener:
		o.armed = true
		o.armListener(domain.SessionReasonListeningArmed)
	case actionDisarmListener:
		o.release()
		o.armed = false
		o.setState(domain.SessionStateIdle, domain.SessionReasonListeningDisarmed)
	case actionRecordOnset:
		o.listener.Stop()
		o.metrics.RecordOnset()
		o.startRecording(domain.SessionReasonVoiceDetected)
	case actionStartRecording:
		o.armed = o.cfg.Mode.Loops()
		o.startRecording(domain.SessionReasonRecordingStarted)
	case actionFinishRecording:
		o.finishRecording()
	case actionFinishAndDisarm:
		o.armed = false
		o.finishRecording()
	case actionDiscardRecording:
		o.release()
		o.armed = false
		o.setState(domain.SessionStateIdle, domain.SessionReasonRecordingDiscarded)
	case actionDisarmLoop:
		o.armed = false
		o.logger.Info("loop disarmed while transcribing")
	case actionDropTranscription:
		o.release()
		o.armed = false
		o.setState(domain.SessionStateIdle, domain.SessionReasonRecordingDiscarded)
	case actionDeliver:
		o.deliver(ev.text)
	case actionFail:
		o.failFrom(ev)
	case actionShutdown:
		o.release()
		o.armed = false
		o.setState(domain.SessionStateCancelled, domain.SessionReasonShutdown)
	}
}

func (o *Orchestrator) armListener(reason domain.SessionStateReason) {
	lease, err := o.mic.Acquire(ownerListener)
	if err != nil {
		o.fail(domain.ErrorCodeInternal, err, domain.SessionReasonInternal)
		return
	}

	o.gen++
	gen := o.gen
	err = o.listener.Start(lease, vad.ListenerHooks{
		OnOnset: func() { o.post(event{trigger: triggerOnset, gen: gen}) },
		OnFailure: func(err error) {
			o.post(event{trigger: triggerDeviceFailed, gen: gen, err: err})
		},
	})
	if err != nil {
		lease.Release()
		o.fail(domain.ErrorCodeInternal, err, domain.SessionReasonInternal)
		return
	}
	o.setState(domain.SessionStateListening, reason)
}

func (o *Orchestrator) startRecording(reason domain.SessionStateReason) {
	lease, err := o.mic.Acquire(ownerCapture)
	if err != nil {
		o.fail(domain.ErrorCodeInternal, err, domain.SessionReasonInternal)
		return
	}

	o.gen++
	gen := o.gen

	var tracker *utteranceTracker
	if o.cfg.Mode.Loops() && o.cfg.SilenceDuration > 0 {
		frame := o.mic.FrameDuration()
		frames := int((o.cfg.SilenceDuration + frame - 1) / frame)
		tracker = newUtteranceTracker(o.detector, frames)
	}

	session, err := o.recorder.Start(o.ctx, lease, o.mic.SampleRate(), capture.Hooks{
		OnFrame: func(frame domain.AudioFrame) {
			if tracker.observe(frame) {
				o.post(event{trigger: triggerUtteranceEnd, gen: gen})
			}
		},
		OnFailure: func(err error) {
			o.post(event{trigger: triggerDeviceFailed, gen: gen, err: err})
		},
	})
	if err != nil {
		lease.Release()
		if errors.Is(err, domain.ErrAlreadyActive) {
			o.fail(domain.ErrorCodeInternal, err, domain.SessionReasonInternal)
			return
		}
		o.fail(domain.ErrorCodeDevice, err, domain.SessionReasonDeviceUnavailable)
		return
	}
	o.session = session

	if o.cfg.MaxDuration > 0 {
		o.maxTimer = time.AfterFunc(o.cfg.MaxDuration, func() {
			o.post(event{trigger: triggerMaxDuration, gen: gen})
		})
	}

	o.metrics.RecordSessionStarted(string(o.cfg.Mode))
	o.setState(domain.SessionStateRecording, reason)
}

func (o *Orchestrator) finishRecording() {
	o.stopMaxTimer()
	session := o.session
	o.session = nil

	buf, err := session.Stop()
	if err != nil {
		o.gen++
		o.fail(domain.ErrorCodeAudioStop, err, domain.SessionReasonInternal)
		return
	}

	o.gen++
	gen := o.gen
	o.setState(domain.SessionStateTranscribing, domain.SessionReasonTranscribing)

	if buf.Duration() < o.cfg.MinDuration {
		o.logger.Info("recording too short, skipping transcription",
			slog.Duration("audio", buf.Duration()),
			slog.Duration("min", o.cfg.MinDuration),
		)
		o.post(event{trigger: triggerTranscript, gen: gen})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), o.cfg.TranscriptionTimeout)
	o.cancelTranscription = cancel

	o.workers.Add(1)
	go func() {
		defer o.workers.Done()
		defer cancel()

		started := time.Now()
		text, err := o.transcriber.Transcribe(ctx, buf)
		elapsed := time.Since(started)
		if err != nil {
			o.metrics.RecordTranscription("failed", elapsed)
			if !errors.Is(err, domain.ErrTranscriptionFailed) {
				err = fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
			}
			o.post(event{trigger: triggerTranscriptionFailed, gen: gen, err: err})
			return
		}
		outcome := "ok"
		if strings.TrimSpace(text) == "" {
			outcome = "empty"
		}
		o.metrics.RecordTranscription(outcome, elapsed)
		o.logger.Info("transcription finished", slog.Duration("elapsed", elapsed), slog.Int("chars", len(text)))
		o.post(event{trigger: triggerTranscript, gen: gen, text: text})
	}()
}

func (o *Orchestrator) deliver(text string) {
	if o.cancelTranscription != nil {
		o.cancelTranscription()
		o.cancelTranscription = nil
	}

	text = strings.TrimSpace(text)
	reason := domain.SessionReasonNoTranscript
	if text != "" {
		reason = domain.SessionReasonTranscriptDelivered
		ctx := context.WithoutCancel(o.ctx)
		o.workers.Add(1)
		go func() {
			defer o.workers.Done()
			o.finalizer.Finalize(ctx, text)
		}()
	}
	o.rearm(reason)
}

// rearm picks the state that follows a finished transcription.
func (o *Orchestrator) rearm(reason domain.SessionStateReason) {
	switch {
	case o.armed && o.cfg.Mode == domain.ModeContinuous:
		o.startRecording(domain.SessionReasonRecordingRestarted)
	case o.armed && o.cfg.Mode == domain.ModeAutoVoiceActivation:
		o.armListener(domain.SessionReasonListeningArmed)
	default:
		if o.cfg.Mode.Loops() && reason == domain.SessionReasonTranscriptDelivered {
			reason = domain.SessionReasonLoopStopped
		}
		o.armed = false
		o.setState(domain.SessionStateIdle, reason)
	}
}

func (o *Orchestrator) failFrom(ev event) {
	switch ev.trigger {
	case triggerTranscriptionFailed:
		o.fail(domain.ErrorCodeTranscription, ev.err, domain.SessionReasonTranscriptionFailed)
	case triggerDeviceFailed:
		reason := domain.SessionReasonDeviceUnavailable
		if o.state == domain.SessionStateRecording {
			reason = domain.SessionReasonDeviceLost
		}
		o.fail(domain.ErrorCodeDevice, ev.err, reason)
	default:
		o.fail(domain.ErrorCodeInternal, ev.err, domain.SessionReasonInternal)
	}
}

// fail reports one error, then passes through Error back to Idle.
func (o *Orchestrator) fail(code domain.ErrorCode, err error, reason domain.SessionStateReason) {
	o.release()
	o.armed = false

	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	o.logger.Error("session failed", slog.String("code", string(code)), slog.String("error", detail))
	o.events.SessionError(code, detail)
	o.setState(domain.SessionStateError, reason)
	o.setState(domain.SessionStateIdle, reason)
}

// release frees whatever the current state holds and invalidates events
// from it.
func (o *Orchestrator) release() {
	o.stopMaxTimer()
	switch o.state {
	case domain.SessionStateListening:
		o.listener.Stop()
	case domain.SessionStateRecording:
		if o.session != nil {
			if err := o.session.Cancel(); err != nil {
				o.logger.Warn("capture cancel", slog.String("error", err.Error()))
			}
			o.session = nil
		}
	case domain.SessionStateTranscribing:
		if o.cancelTranscription != nil {
			o.cancelTranscription()
			o.cancelTranscription = nil
		}
	}
	o.gen++
}

func (o *Orchestrator) stopMaxTimer() {
	if o.maxTimer != nil {
		o.maxTimer.Stop()
		o.maxTimer = nil
	}
}

func (o *Orchestrator) setState(state domain.SessionState, reason domain.SessionStateReason) {
	o.state = state

	o.statusMu.Lock()
	o.status = state
	o.statusMu.Unlock()

	o.metrics.RecordState(string(state))
	o.logger.Info("session state", slog.String("state", string(state)), slog.String("reason", string(reason)))
	o.events.SessionStateChanged(domain.StateChange{State: state, Reason: reason, At: time.Now()})
}
