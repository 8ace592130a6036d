package audio

import (
	"fmt"
	"math"
	"sort"

	"apollosim/pkg/missionlog"
)

const tickEpsilon = 1e-6

// DefaultMaxPendingPerBus caps each bus's pending queue depth.
const DefaultMaxPendingPerBus = 16

// DefaultMaxLedgerEntries bounds the dispatcher's FIFO-trimmed ledger.
const DefaultMaxLedgerEntries = 1000

// DefaultDuckRampSeconds is used for every setGain ramp; spec.md §4.9 leaves
// the ramp duration unspecified, so a single conservative constant is used
// module-wide rather than per-rule configuration.
const DefaultDuckRampSeconds = 0.5

// AudioMixer is the dispatcher's narrow sink interface, mirroring
// oci.MetricsClient's minimal-surface segregation: the dispatcher only ever
// needs to set a bus's gain.
type AudioMixer interface {
	SetGain(busID string, gain float64, rampSeconds float64)
}

type busState struct {
	bus     *Bus
	pending []resolvedTrigger
	active  []*ActiveRecord
}

// Dispatcher is the Audio Dispatcher (C10).
type Dispatcher struct {
	catalog Catalog
	mixer   AudioMixer
	log     missionlog.Sink

	buses map[string]*busState

	lastCueTrigger      map[string]float64
	lastCategoryTrigger map[string]float64

	duckContributions map[string]map[string]float64 // targetBusID -> sourceBusID -> gain
	appliedGain        map[string]float64

	ledger           []LedgerEntry
	maxLedgerEntries int
	maxPendingPerBus int
	nextLedgerID     int
	insertionSeq     int
	suppressedCount  int
}

// NewDispatcher constructs a Dispatcher over catalog, delivering gain
// changes to mixer (may be nil in tests that only assert ledger/queue
// state).
func NewDispatcher(catalog Catalog, mixer AudioMixer, log missionlog.Sink) *Dispatcher {
	d := &Dispatcher{
		catalog:             catalog,
		mixer:               mixer,
		log:                 log,
		buses:               make(map[string]*busState, len(catalog.Buses)),
		lastCueTrigger:      make(map[string]float64),
		lastCategoryTrigger: make(map[string]float64),
		duckContributions:   make(map[string]map[string]float64),
		appliedGain:         make(map[string]float64),
		maxLedgerEntries:    DefaultMaxLedgerEntries,
		maxPendingPerBus:    DefaultMaxPendingPerBus,
	}

	for id, bus := range catalog.Buses {
		d.buses[id] = &busState{bus: bus}
	}

	if _, ok := d.buses[DefaultBusID]; !ok {
		d.buses[DefaultBusID] = &busState{bus: &Bus{ID: DefaultBusID, MaxConcurrent: 1}}
	}

	return d
}

func (d *Dispatcher) logf(getSeconds float64, severity missionlog.Severity, format string, args ...any) {
	if d.log == nil {
		return
	}

	d.log.Log(missionlog.Entry{
		GetSeconds: getSeconds,
		Severity:   severity,
		Category:   missionlog.CategoryAudio,
		Source:     "audio",
		Message:    fmt.Sprintf(format, args...),
	})
}

// SuppressedCount reports how many triggers have been dropped for being
// under cooldown.
func (d *Dispatcher) SuppressedCount() int {
	return d.suppressedCount
}

// Ledger returns a copy of the dispatcher's playback ledger, oldest first.
func (d *Dispatcher) Ledger() []LedgerEntry {
	out := make([]LedgerEntry, len(d.ledger))
	copy(out, d.ledger)

	return out
}

// Active returns a copy of the currently-active records on busID.
func (d *Dispatcher) Active(busID string) []ActiveRecord {
	bs, ok := d.buses[busID]
	if !ok {
		return nil
	}

	out := make([]ActiveRecord, len(bs.active))
	for i, rec := range bs.active {
		out[i] = *rec
	}

	return out
}

// Enqueue resolves trigger's category/bus and fixed tie-break ordering
// fields, then appends it to the owning bus's pending queue, capped at
// maxPendingPerBus (oldest-pending overflow is dropped).
func (d *Dispatcher) Enqueue(trigger Trigger) {
	cue, ok := d.catalog.Cues[trigger.CueID]
	if !ok {
		d.logf(trigger.TriggeredAtSeconds, missionlog.SeverityWarn, "unknown cue %q", trigger.CueID)

		return
	}

	busID := d.resolveBusID(cue)

	bs, ok := d.buses[busID]
	if !ok {
		bs = &busState{bus: &Bus{ID: busID, MaxConcurrent: 1}}
		d.buses[busID] = bs
	}

	trigger.insertionSeq = d.insertionSeq
	d.insertionSeq++

	resolved := resolvedTrigger{
		Trigger:           trigger,
		cue:               cue,
		busID:             busID,
		effectivePriority: d.effectivePriority(cue, trigger.Severity),
	}

	bs.pending = append(bs.pending, resolved)
	for len(bs.pending) > d.maxPendingPerBus {
		oldest := 0
		for i := range bs.pending {
			if bs.pending[i].insertionSeq < bs.pending[oldest].insertionSeq {
				oldest = i
			}
		}

		bs.pending = append(bs.pending[:oldest], bs.pending[oldest+1:]...)
	}

	sortPending(bs.pending)
}

func (d *Dispatcher) resolveBusID(cue *Cue) string {
	if cue.BusID != "" {
		return cue.BusID
	}

	if cue.CategoryID != "" {
		if cat, ok := d.catalog.Categories[cue.CategoryID]; ok && cat.BusID != "" {
			return cat.BusID
		}
	}

	return DefaultBusID
}

func (d *Dispatcher) effectivePriority(cue *Cue, severity Severity) float64 {
	base := 0.0

	if cue.Priority != nil {
		base = *cue.Priority
	} else if cue.CategoryID != "" {
		if cat, ok := d.catalog.Categories[cue.CategoryID]; ok {
			base = cat.DefaultPriority
		}
	}

	return base + severityWeight[severity]
}

func sortPending(pending []resolvedTrigger) {
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.effectivePriority != b.effectivePriority {
			return a.effectivePriority > b.effectivePriority
		}

		if a.TriggeredAtSeconds != b.TriggeredAtSeconds {
			return a.TriggeredAtSeconds < b.TriggeredAtSeconds
		}

		return a.insertionSeq < b.insertionSeq
	})
}

// Update advances the dispatcher by one tick, per spec.md §4.9's four-step
// order: retire, drain (already resident via Enqueue), admit, preempt.
func (d *Dispatcher) Update(getSeconds float64) {
	for _, bs := range d.buses {
		d.retire(bs, getSeconds)
	}

	for _, bs := range d.buses {
		d.admit(bs, getSeconds)
	}

	for _, bs := range d.buses {
		d.preempt(bs, getSeconds)
	}
}

func (d *Dispatcher) retire(bs *busState, getSeconds float64) {
	kept := bs.active[:0]

	for _, rec := range bs.active {
		if !isLoopEnd(rec.EndsAt) && rec.EndsAt <= getSeconds+tickEpsilon {
			d.stop(rec, getSeconds, StatusCompleted, "ended")

			continue
		}

		kept = append(kept, rec)
	}

	bs.active = kept
}

func (d *Dispatcher) cueOnCooldown(cue *Cue, now float64) bool {
	if last, ok := d.lastCueTrigger[cue.ID]; ok && cue.CooldownSeconds > 0 {
		if now < last+cue.CooldownSeconds-tickEpsilon {
			return true
		}
	}

	if cue.CategoryID == "" {
		return false
	}

	cat, ok := d.catalog.Categories[cue.CategoryID]
	if !ok || cat.CooldownSeconds <= 0 {
		return false
	}

	last, ok := d.lastCategoryTrigger[cat.ID]

	return ok && now < last+cat.CooldownSeconds-tickEpsilon
}

func (d *Dispatcher) admit(bs *busState, getSeconds float64) {
	maxConcurrent := bs.bus.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	for len(bs.active) < maxConcurrent {
		idx := d.nextEligible(bs, getSeconds)
		if idx < 0 {
			return
		}

		trig := bs.pending[idx]
		bs.pending = append(bs.pending[:idx], bs.pending[idx+1:]...)
		d.start(bs, trig, getSeconds)
	}
}

// nextEligible returns the index of the highest-priority pending trigger on
// bs that is not currently under cooldown, or -1 if none qualifies.
// Ineligible (cooling-down) entries are dropped and counted as suppressed.
func (d *Dispatcher) nextEligible(bs *busState, getSeconds float64) int {
	for {
		if len(bs.pending) == 0 {
			return -1
		}

		if !d.cueOnCooldown(bs.pending[0].cue, getSeconds) {
			return 0
		}

		suppressed := bs.pending[0]
		bs.pending = bs.pending[1:]
		d.suppressedCount++
		d.logf(getSeconds, missionlog.SeverityDebug, "cue %q suppressed (cooldown)", suppressed.CueID)
	}
}

func (d *Dispatcher) preempt(bs *busState, getSeconds float64) {
	if len(bs.pending) == 0 || len(bs.active) == 0 {
		return
	}

	maxConcurrent := bs.bus.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	if len(bs.active) < maxConcurrent {
		return
	}

	idx := d.nextEligible(bs, getSeconds)
	if idx < 0 {
		return
	}

	best := bs.pending[idx]

	lowest := bs.active[0]
	for _, rec := range bs.active[1:] {
		if rec.Priority < lowest.Priority {
			lowest = rec
		}
	}

	if best.effectivePriority <= lowest.Priority+tickEpsilon {
		return
	}

	bs.pending = append(bs.pending[:idx], bs.pending[idx+1:]...)

	for i, rec := range bs.active {
		if rec == lowest {
			bs.active = append(bs.active[:i], bs.active[i+1:]...)

			break
		}
	}

	d.stop(lowest, getSeconds, StatusPreempted, "preempted")
	d.start(bs, best, getSeconds)
}

func (d *Dispatcher) start(bs *busState, trig resolvedTrigger, getSeconds float64) {
	duration := trig.cue.LengthSeconds

	endsAt := math.Inf(1)
	if !trig.cue.Loop {
		if !math.IsInf(duration, 1) && duration > 0 {
			endsAt = getSeconds + duration
		} else {
			endsAt = getSeconds + DefaultCueDurationSeconds
		}
	}

	d.nextLedgerID++

	rec := &ActiveRecord{
		LedgerID:   d.nextLedgerID,
		CueID:      trig.CueID,
		CategoryID: trig.cue.CategoryID,
		BusID:      trig.busID,
		Severity:   trig.Severity,
		Priority:   trig.effectivePriority,
		StartedAt:  getSeconds,
		EndsAt:     endsAt,
	}

	bs.active = append(bs.active, rec)

	d.lastCueTrigger[trig.CueID] = getSeconds
	if trig.cue.CategoryID != "" {
		d.lastCategoryTrigger[trig.cue.CategoryID] = getSeconds
	}

	d.applyDucking(bs.bus, rec, getSeconds)

	d.ledger = append(d.ledger, LedgerEntry{
		LedgerID:   rec.LedgerID,
		CueID:      rec.CueID,
		CategoryID: rec.CategoryID,
		BusID:      rec.BusID,
		Severity:   rec.Severity,
		StartedAt:  rec.StartedAt,
		Status:     StatusPlaying,
		Metadata:   trig.Metadata,
		Ducking:    rec.duckingApplied,
	})
	d.trimLedger()

	d.logf(getSeconds, missionlog.SeverityInfo, "cue %q playing on bus %q", rec.CueID, rec.BusID)
}

func (d *Dispatcher) applyDucking(bus *Bus, rec *ActiveRecord, getSeconds float64) {
	if len(bus.Ducking) == 0 {
		return
	}

	rec.duckingApplied = append([]DuckingRule(nil), bus.Ducking...)

	for _, rule := range bus.Ducking {
		contributions, ok := d.duckContributions[rule.TargetBusID]
		if !ok {
			contributions = make(map[string]float64)
			d.duckContributions[rule.TargetBusID] = contributions
		}

		contributions[bus.ID] = rule.GainLinear
		d.recomputeDuckGain(rule.TargetBusID, getSeconds)
	}
}

func (d *Dispatcher) removeDucking(rec *ActiveRecord, getSeconds float64) {
	for _, rule := range rec.duckingApplied {
		contributions, ok := d.duckContributions[rule.TargetBusID]
		if !ok {
			continue
		}

		delete(contributions, rec.BusID)
		d.recomputeDuckGain(rule.TargetBusID, getSeconds)
	}
}

func (d *Dispatcher) recomputeDuckGain(targetBusID string, getSeconds float64) {
	contributions := d.duckContributions[targetBusID]

	gain := 1.0
	for _, g := range contributions {
		if g < gain {
			gain = g
		}
	}

	if prev, ok := d.appliedGain[targetBusID]; ok && math.Abs(prev-gain) < tickEpsilon {
		return
	}

	d.appliedGain[targetBusID] = gain

	if d.mixer != nil {
		d.mixer.SetGain(targetBusID, gain, DefaultDuckRampSeconds)
	}

	d.logf(getSeconds, missionlog.SeverityDebug, "bus %q gain -> %.3f", targetBusID, gain)
}

func (d *Dispatcher) stop(rec *ActiveRecord, getSeconds float64, status Status, reason string) {
	d.removeDucking(rec, getSeconds)

	for i := range d.ledger {
		if d.ledger[i].LedgerID == rec.LedgerID {
			d.ledger[i].EndedAt = getSeconds
			d.ledger[i].Status = status
			d.ledger[i].StopReason = reason

			break
		}
	}

	d.logf(getSeconds, missionlog.SeverityInfo, "cue %q stopped on bus %q: %s", rec.CueID, rec.BusID, reason)
}

func (d *Dispatcher) trimLedger() {
	if overflow := len(d.ledger) - d.maxLedgerEntries; d.maxLedgerEntries > 0 && overflow > 0 {
		d.ledger = d.ledger[overflow:]
	}
}
