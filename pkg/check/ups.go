package check

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/watchkeep/watchkeep/pkg/serialport"
)

func init() {
	Register("ups", newUPSStatusCheck)
	Register("upstest", newUPSTestCheck)
}

// ups speaks the common Megatec/PR2000-style ASCII protocol: a "Q1"
// query returns a fixed-width line of readings terminated by an 8-bit
// status flag string, e.g. "(220.0 220.0 220.0 010 50.0 27.2 30.0 00000000".
// The leftmost flag set means "utility fail".

func newUPSStatusCheck(cfg Config) (Check, error) {
	bc := NewBaseCheck(cfg, nil)
	bc.prober = ProberFunc(func(ctx context.Context, c *BaseCheck) FailState {
		return probeUPS(c, "Q1\r")
	})
	return bc, nil
}

// upstest triggers the UPS's self-test ("T\r") and reports the result
// line, rather than polling status.
func newUPSTestCheck(cfg Config) (Check, error) {
	bc := NewBaseCheck(cfg, nil)
	bc.prober = ProberFunc(func(ctx context.Context, c *BaseCheck) FailState {
		return probeUPS(c, "T\r")
	})
	return bc, nil
}

func probeUPS(c *BaseCheck, command string) FailState {
	path := GetStrOpt(c.Options(), "port", "/dev/ttyUSB0")
	baud := GetIntOpt(c.Options(), "baud", 2400)
	secs := GetIntOpt(c.Options(), "timeout", 5)
	timeout := time.Duration(secs) * time.Second

	lock := serialport.Lock(path)
	lock.Lock()
	defer lock.Unlock()

	line, err := serialport.Query(context.Background(), path, baud, command, timeout)
	if err != nil {
		return Fail(err.Error())
	}
	return parseUPSLine(line)
}

func parseUPSLine(line string) FailState {
	fields := strings.Fields(strings.TrimPrefix(line, "("))
	if len(fields) == 0 {
		return Fail("empty ups response")
	}
	status := fields[len(fields)-1]
	if len(status) != 8 {
		// Not a status line (e.g. a self-test acknowledgement); treat any
		// non-empty response as a pass.
		return Pass()
	}
	if _, err := strconv.ParseUint(status, 2, 8); err != nil {
		return Fail(fmt.Sprintf("unparseable status flags %q", status))
	}
	utilityFail := status[0] == '1'
	lowBattery := status[2] == '1'
	if utilityFail {
		return Fail("ups on battery: utility fail")
	}
	if lowBattery {
		return Fail("ups battery low")
	}
	return Pass()
}
