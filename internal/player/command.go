package player

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is a user-invokable action on the player.
//
// Media commands use the WM_APPCOMMAND lParam encoding (APPCOMMAND_* << 16),
// so a value that is not one of the named commands below is forwarded to the
// player window untouched. Use Raw to build such a value.
type Command uint32

const (
	ShowToast     Command = 1
	ShowPlayer    Command = 2
	CopyTrackInfo Command = 3

	Mute          Command = 8 << 16
	VolumeDown    Command = 9 << 16
	VolumeUp      Command = 10 << 16
	NextTrack     Command = 11 << 16
	PreviousTrack Command = 12 << 16
	Stop          Command = 13 << 16
	PlayPause     Command = 14 << 16
	FastForward   Command = 49 << 16
	Rewind        Command = 50 << 16
)

var commandNames = map[Command]string{
	ShowToast:     "show-toast",
	ShowPlayer:    "show",
	CopyTrackInfo: "copy-track-info",
	Mute:          "mute",
	VolumeDown:    "volume-down",
	VolumeUp:      "volume-up",
	NextTrack:     "next",
	PreviousTrack: "previous",
	Stop:          "stop",
	PlayPause:     "play-pause",
	FastForward:   "fast-forward",
	Rewind:        "rewind",
}

// Raw wraps a native command code that has no named Command
func Raw(code uint32) Command {
	return Command(code)
}

// Named reports whether c is one of the closed set of named commands
func (c Command) Named() bool {
	_, ok := commandNames[c]
	return ok
}

// String returns the command name, or the raw code in hex
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("raw(0x%08x)", uint32(c))
}

// Commands returns the named commands in a stable order
func Commands() []Command {
	return []Command{
		PlayPause, NextTrack, PreviousTrack, Stop,
		FastForward, Rewind, VolumeUp, VolumeDown, Mute,
		ShowPlayer, ShowToast, CopyTrackInfo,
	}
}

// ParseCommand accepts a command name (case-insensitive, "_" or "-"
// separated) or a numeric native code ("0x000e0000" or decimal).
func ParseCommand(s string) (Command, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "_", "-")

	for c, n := range commandNames {
		if n == name {
			return c, nil
		}
	}

	switch name {
	case "prev":
		return PreviousTrack, nil
	case "ff":
		return FastForward, nil
	case "playpause":
		return PlayPause, nil
	}

	code, err := strconv.ParseUint(name, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown command %q", s)
	}
	if code == 0 {
		return 0, fmt.Errorf("command code must be non-zero")
	}
	return Raw(uint32(code)), nil
}
