package structure

import (
	"bytes"
	"strings"
)

// coordinateRecords are the record types kept when cleaning a structure file.
var coordinateRecords = []string{"ATOM", "HETATM", "MODEL", "TER", "END"}

// Cryst1 is the unit-cell record some classifiers require before coordinates.
const Cryst1 = "CRYST1    1.000    1.000    1.000  90.00  90.00  90.00 P 1           1"

// IsCoordinateRecord reports whether a line is one of the kept record types.
// ENDMDL matches through its END prefix.
func IsCoordinateRecord(line string) bool {
	for _, rec := range coordinateRecords {
		if strings.HasPrefix(line, rec) {
			return true
		}
	}
	return false
}

// StripNonCoordinate drops every line that is not a coordinate record.
func StripNonCoordinate(data []byte) []byte {
	var out bytes.Buffer
	for _, line := range strings.SplitAfter(string(data), "\n") {
		if IsCoordinateRecord(line) {
			out.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				out.WriteByte('\n')
			}
		}
	}
	return out.Bytes()
}

// EnsureCryst1 prepends a unit CRYST1 record when the data does not start with one.
func EnsureCryst1(data []byte) []byte {
	if bytes.HasPrefix(data, []byte("CRYST1")) {
		return data
	}
	out := make([]byte, 0, len(Cryst1)+1+len(data))
	out = append(out, Cryst1...)
	out = append(out, '\n')
	return append(out, data...)
}
