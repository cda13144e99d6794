// Package link defines what the core reports back over the wireless link.
package link

import (
	"fmt"
	"strconv"
	"strings"

	"crocker/internal/errcode"
)

// Status is the outbound status code. The numeric values are part of the
// wire format.
type Status int

const (
	Idle             Status = 0
	ReceivingConfig  Status = 1
	ReceivingFile    Status = 2
	Success          Status = 3
	Error            Status = 4
	TransferComplete Status = 5
	ProcessingConfig Status = 6
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case ReceivingConfig:
		return "receiving_config"
	case ReceivingFile:
		return "receiving_file"
	case Success:
		return "success"
	case Error:
		return "error"
	case TransferComplete:
		return "transfer_complete"
	case ProcessingConfig:
		return "processing_config"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// ScheduleSyncRequest is sent on the status channel to ask the host to
// resend the schedule.
const ScheduleSyncRequest = "SCHEDULE_SYNC_REQUEST"

// Sink is implemented by the transport.
type Sink interface {
	Status(code Status, msg string) error
	Connected() bool
	RequestScheduleSync() error
}

// Format renders a status report in wire form, "<code>:<message>".
func Format(code Status, msg string) string {
	return fmt.Sprintf("%d:%s", int(code), msg)
}

// Parse is the inverse of Format.
func Parse(s string) (Status, string, error) {
	num, msg, ok := strings.Cut(s, ":")
	if !ok {
		return 0, "", errcode.New(errcode.ParseError, "link.parse", "missing separator")
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < int(Idle) || n > int(ProcessingConfig) {
		return 0, "", errcode.New(errcode.ParseError, "link.parse", fmt.Sprintf("bad status code %q", num))
	}
	return Status(n), msg, nil
}

// Nop is a Sink for running without a link.
type Nop struct{}

func (Nop) Status(Status, string) error { return nil }
func (Nop) Connected() bool             { return false }
func (Nop) RequestScheduleSync() error  { return nil }
