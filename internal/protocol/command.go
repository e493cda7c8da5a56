package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Code is a numeric device command.
type Code int

// Device command codes.
const (
	RelayOn         Code = 1
	RelayOff        Code = 2
	ReadTemperature Code = 3
	FanAuto         Code = 4
	FanManual       Code = 5
	FanOn           Code = 6
	FanOff          Code = 7
	SetThresholds   Code = 8
	ReadThresholds  Code = 9
	SetNetwork      Code = 10
)

var codeNames = map[Code]string{
	RelayOn:         "relay on",
	RelayOff:        "relay off",
	ReadTemperature: "read temperature",
	FanAuto:         "fan auto",
	FanManual:       "fan manual",
	FanOn:           "fan on",
	FanOff:          "fan off",
	SetThresholds:   "set thresholds",
	ReadThresholds:  "read thresholds",
	SetNetwork:      "set network",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "code " + strconv.Itoa(int(c))
}

// Valid reports whether c is one of the known codes.
func (c Code) Valid() bool {
	return c >= RelayOn && c <= SetNetwork
}

// Command is one request line. Arguments are sent verbatim; ValidateArgs
// rejects the ones that would split the line or fake a reply frame.
type Command struct {
	code Code
	args []string
}

// NewCommand copies args so the command cannot change after construction.
func NewCommand(code Code, args ...string) Command {
	cp := make([]string, len(args))
	copy(cp, args)
	return Command{code: code, args: cp}
}

func (c Command) Code() Code { return c.code }

func (c Command) Args() []string {
	cp := make([]string, len(c.args))
	copy(cp, c.args)
	return cp
}

// Line renders the request without the line terminator, e.g. "8 10 30".
func (c Command) Line() string {
	if len(c.args) == 0 {
		return strconv.Itoa(int(c.code))
	}
	return strconv.Itoa(int(c.code)) + " " + strings.Join(c.args, " ")
}

// Encode renders the request as sent on the wire.
func (c Command) Encode() []byte {
	return []byte(c.Line() + "\r\n")
}

func (c Command) validate() error {
	if !c.code.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidCommand, int(c.code))
	}
	return ValidateArgs(c.args)
}

// ValidateArgs rejects arguments holding a line break, a NUL or the prompt
// character.
func ValidateArgs(args []string) error {
	for i, a := range args {
		if strings.ContainsAny(a, "\r\n\x00>") {
			return fmt.Errorf("%w: argument %d %q", ErrInvalidArgument, i+1, a)
		}
	}
	return nil
}
