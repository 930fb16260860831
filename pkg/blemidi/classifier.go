// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

// Class is the result of classifying a single MIDI byte.
type Class uint8

const (
	ClassData Class = iota
	ClassChannelVoice1
	ClassChannelVoice2
	ClassSysExStart
	ClassSysCommon1
	ClassSysCommon2
	ClassSysCommonUndefined
	ClassTuneRequest
	ClassSysExEnd
	ClassRealTime
	numClasses
)

var classNames = [numClasses]string{
	ClassData:               "DATA",
	ClassChannelVoice1:      "CHANNEL_VOICE_1",
	ClassChannelVoice2:      "CHANNEL_VOICE_2",
	ClassSysExStart:         "SYSEX_START",
	ClassSysCommon1:         "SYS_COMMON_1",
	ClassSysCommon2:         "SYS_COMMON_2",
	ClassSysCommonUndefined: "SYS_COMMON_UNDEFINED",
	ClassTuneRequest:        "TUNE_REQUEST",
	ClassSysExEnd:           "SYSEX_END",
	ClassRealTime:           "REAL_TIME",
}

func (c Class) String() string {
	if c < numClasses {
		return classNames[c]
	}
	return "UNKNOWN"
}

// IsStatus reports whether the class is any status byte.
func (c Class) IsStatus() bool {
	return c != ClassData
}

// DataBytes returns how many data bytes follow a status of this class.
// SysEx start reports 0; its payload length is open-ended.
func (c Class) DataBytes() int {
	switch c {
	case ClassChannelVoice1, ClassSysCommon1:
		return 1
	case ClassChannelVoice2, ClassSysCommon2:
		return 2
	}
	return 0
}

// Classify maps a byte to its class using only its two nibbles. Every byte
// value has exactly one class.
func Classify(b byte) Class {
	switch b >> 4 {
	case StatusNoteOff, StatusNoteOn, StatusPolyAftertouch, StatusControlChange, StatusPitchBend:
		return ClassChannelVoice2
	case StatusProgramChange, StatusChannelPressure:
		return ClassChannelVoice1
	case StatusSystem:
		if b&0x08 != 0 {
			return ClassRealTime
		}
		switch b {
		case SysExStart:
			return ClassSysExStart
		case SysTimeCode, SysSongSelect:
			return ClassSysCommon1
		case SysSongPosition:
			return ClassSysCommon2
		case SysTuneRequest:
			return ClassTuneRequest
		case SysExEnd:
			return ClassSysExEnd
		default:
			return ClassSysCommonUndefined
		}
	default:
		return ClassData
	}
}

// DataLength returns the number of data bytes expected after status b, or -1
// when b is not a status byte with a fixed length.
func DataLength(b byte) int {
	c := Classify(b)
	switch c {
	case ClassData, ClassSysExStart, ClassSysCommonUndefined:
		return -1
	}
	return c.DataBytes()
}
