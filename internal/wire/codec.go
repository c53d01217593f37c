// Package wire implements the byte-level protocol spoken with the
// controller firmware: fixed-size command frames going out, newline
// terminated status and sample lines coming back.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/armtune/tuner-core/pkg/models"
)

const (
	// FrameSize is the size in bytes of an encoded command frame:
	// five float32 values in little-endian order.
	FrameSize = 20

	// StatusDone is the substring the firmware includes in its status
	// line once a run has finished and the sample dump follows.
	StatusDone = "done"

	// SeriesSeparator delimits samples within a dump line.
	SeriesSeparator = ";"

	// minSeriesLength is the shortest dump line accepted as a real
	// sample series. Shorter lines are residual noise from the status
	// exchange and are skipped.
	minSeriesLength = 80
)

// AckPayload is written back to the firmware after a sample series has
// been received and parsed, releasing it for the next run.
const AckPayload = "angles received"

// MalformedFrameError reports a dump line that could not be parsed
// into a sample series.
type MalformedFrameError struct {
	Line   string
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

// EncodeFrame encodes a command frame carrying the gains and run
// parameters for one experiment. The firmware reads exactly five
// float32 values in little-endian order: Kp, Ki, Kd, run time and
// dump rate, both times in milliseconds.
func EncodeFrame(gains models.GainTriple, params models.RunParameters) []byte {
	values := [5]float32{
		float32(gains.Kp),
		float32(gains.Ki),
		float32(gains.Kd),
		float32(params.RunTimeMs),
		float32(params.DumpRateMs),
	}

	buf := make([]byte, FrameSize)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeStatus reports whether a status line signals run completion.
// The firmware terminates the status with extra framing characters,
// so the check is a substring match rather than an equality test.
func DecodeStatus(line string) bool {
	return strings.Contains(line, StatusDone)
}

// DecodeSeries parses a dump line into a sample series. Lines shorter
// than the noise threshold yield (nil, nil) so the caller can keep
// reading; a long line that fails to parse is a protocol error.
func DecodeSeries(line string) (models.ResponseSeries, error) {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < minSeriesLength {
		return nil, nil
	}

	fields := strings.Split(trimmed, SeriesSeparator)
	series := make(models.ResponseSeries, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, &MalformedFrameError{
				Line:   trimmed,
				Reason: fmt.Sprintf("bad sample %q: %v", field, err),
			}
		}
		series = append(series, v)
	}

	if len(series) == 0 {
		return nil, &MalformedFrameError{Line: trimmed, Reason: "no samples"}
	}
	return series, nil
}
