// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

// State is the reconstruction state machine's current state.
type State uint8

const (
	StateWaitStatus          State = iota // no message in progress
	StateWaitData1                        // one data byte expected (program change, channel pressure)
	StateWaitData2First                   // first of two data bytes expected
	StateWaitData2Second                  // second of two data bytes expected
	StateWaitStatusOrRunning              // channel event done; data here continues running status
	StateWaitRunningData2                 // second data byte under running status
	StateWaitSysData1                     // MTC quarter frame or song select data
	StateWaitSysData1Of2                  // song position, first data byte
	StateWaitSysData2Of2                  // song position, second data byte
	StateSysExStart                       // saw 0xF0, awaiting first payload byte
	StateSysExContinue                    // streaming SysEx payload
	numStates

	stateUnchanged = numStates
)

var stateNames = [numStates]string{
	StateWaitStatus:          "WAIT_STATUS",
	StateWaitData1:           "WAIT_DATA_1",
	StateWaitData2First:      "WAIT_DATA_2_1",
	StateWaitData2Second:     "WAIT_DATA_2_2",
	StateWaitStatusOrRunning: "WAIT_STATUS_OR_RUNNING",
	StateWaitRunningData2:    "WAIT_RUNNING_DATA_2",
	StateWaitSysData1:        "WAIT_SYS_DATA_1",
	StateWaitSysData1Of2:     "WAIT_SYS_DATA_1_OF_2",
	StateWaitSysData2Of2:     "WAIT_SYS_DATA_2_OF_2",
	StateSysExStart:          "SYSEX_START",
	StateSysExContinue:       "SYSEX_CONTINUE",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return "UNKNOWN"
}

type action uint8

const (
	actDiscard   action = iota // drop the byte
	actRecord                  // remember status, abandon any message in progress
	actEmitByte                // emit the byte alone (real-time, tune request, SysEx end)
	actStore                   // remember the first data byte
	actEmit1                   // emit status + byte
	actEmit2                   // emit status + stored byte + byte
	actRunning                 // data byte repeating the last channel status
	actSysExOpen               // emit 0xF0 + first payload byte
	actSysExData               // stream one payload byte
)

type transition struct {
	act  action
	next State
}

// Status bytes act the same in every state, except SysEx end which is only
// meaningful while a SysEx stream is open.
var statusTransitions = [numClasses]transition{
	ClassChannelVoice1:      {actRecord, StateWaitData1},
	ClassChannelVoice2:      {actRecord, StateWaitData2First},
	ClassSysExStart:         {actRecord, StateSysExStart},
	ClassSysCommon1:         {actRecord, StateWaitSysData1},
	ClassSysCommon2:         {actRecord, StateWaitSysData1Of2},
	ClassSysCommonUndefined: {actDiscard, stateUnchanged},
	ClassTuneRequest:        {actEmitByte, stateUnchanged},
	ClassRealTime:           {actEmitByte, stateUnchanged},
	ClassSysExEnd:           {actDiscard, stateUnchanged},
}

var dataTransitions = [numStates]transition{
	StateWaitStatus:          {actDiscard, StateWaitStatus},
	StateWaitData1:           {actEmit1, StateWaitStatusOrRunning},
	StateWaitData2First:      {actStore, StateWaitData2Second},
	StateWaitData2Second:     {actEmit2, StateWaitStatusOrRunning},
	StateWaitStatusOrRunning: {actRunning, StateWaitRunningData2},
	StateWaitRunningData2:    {actEmit2, StateWaitStatusOrRunning},
	StateWaitSysData1:        {actEmit1, StateWaitStatus},
	StateWaitSysData1Of2:     {actStore, StateWaitSysData2Of2},
	StateWaitSysData2Of2:     {actEmit2, StateWaitStatus},
	StateSysExStart:          {actSysExOpen, StateSysExContinue},
	StateSysExContinue:       {actSysExData, StateSysExContinue},
}

func lookup(s State, c Class) transition {
	switch c {
	case ClassData:
		return dataTransitions[s]
	case ClassSysExEnd:
		if s == StateSysExContinue {
			return transition{actEmitByte, StateWaitStatus}
		}
	}
	t := statusTransitions[c]
	if t.next == stateUnchanged {
		t.next = s
	}
	return t
}

// Engine reconstructs MIDI messages from a raw serial byte stream and feeds
// them to its Packetizer. It is not safe for concurrent use; a single driving
// loop owns it.
type Engine struct {
	state  State
	status byte // last status relevant to the message in progress
	data1  byte // first data byte of a two-byte message

	pk   *Packetizer
	opts options

	bytesIn uint64
	events  uint64
	ignored uint64
}

// NewEngine creates an engine writing into a buffer of the given capacity.
func NewEngine(transport Transport, capacity int, opts ...Option) (*Engine, error) {
	pk, err := NewPacketizer(transport, capacity, opts...)
	if err != nil {
		return nil, err
	}
	return &Engine{state: StateWaitStatus, pk: pk, opts: buildOptions(opts)}, nil
}

// Process feeds a chunk of bytes that arrived together at time ts.
func (e *Engine) Process(data []byte, ts Timestamp) {
	for _, b := range data {
		e.ProcessByte(b, ts)
	}
}

// ProcessByte advances the state machine by one byte. Completed events are
// timestamped with ts, the time of the byte that completed them.
func (e *Engine) ProcessByte(b byte, ts Timestamp) {
	e.bytesIn++
	t := lookup(e.state, Classify(b))

	switch t.act {
	case actDiscard:
		e.ignored++
	case actRecord:
		e.status = b
	case actEmitByte:
		e.emit(ts, b)
	case actStore:
		e.data1 = b
	case actEmit1:
		e.emit(ts, e.status, b)
	case actEmit2:
		e.emit(ts, e.status, e.data1, b)
	case actRunning:
		if e.opts.runningArity && Classify(e.status) == ClassChannelVoice1 {
			e.emit(ts, e.status, b)
			t.next = StateWaitStatusOrRunning
		} else {
			e.data1 = b
		}
	case actSysExOpen:
		e.emit(ts, e.status, b)
	case actSysExData:
		e.pk.AppendRaw(ts, b)
	}
	e.state = t.next
}

// Flush hands any buffered bytes to the transport.
func (e *Engine) Flush(reason FlushReason) bool {
	return e.pk.Flush(reason)
}

// Reconfigure replaces the output buffer with an empty one of the new
// capacity and resets the parser to WAIT_STATUS. Buffered bytes are discarded,
// not sent; the count is returned. On error nothing changes.
func (e *Engine) Reconfigure(capacity int) (int, error) {
	discarded, err := e.pk.Reconfigure(capacity)
	if err != nil {
		return 0, err
	}
	e.state = StateWaitStatus
	e.status = 0
	e.data1 = 0
	return discarded, nil
}

// State returns the current parser state.
func (e *Engine) State() State {
	return e.state
}

// Packetizer returns the engine's output packetizer.
func (e *Engine) Packetizer() *Packetizer {
	return e.pk
}

// Counters returns the combined engine and packetizer counters.
func (e *Engine) Counters() Counters {
	c := e.pk.Counters()
	c.BytesIn = e.bytesIn
	c.Events = e.events
	c.Ignored = e.ignored
	return c
}

func (e *Engine) emit(ts Timestamp, event ...byte) {
	e.events++
	e.pk.Append(ts, event...)
}
