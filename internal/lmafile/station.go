package lmafile

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Raw station files look like LA_DCLMA_Arlington_240601_100000.dat.gz:
// L<station id>_<network>_<station name>_<YYMMDD>_<HHMMSS>.
var stationPattern = regexp.MustCompile(`^.*?L([A-Za-z]*)_([A-Za-z]+)_(\w*)_(\d{6})_(\d{6})`)

// StationFile is a raw data file recorded by one station of a network.
type StationFile struct {
	FilePath    string
	ID          string
	NetworkName string
	StationName string
	Time        time.Time
}

func (s StationFile) Path() string         { return s.FilePath }
func (s StationFile) Network() string      { return s.NetworkName }
func (s StationFile) Timestamp() time.Time { return s.Time }
func (s StationFile) StationID() string    { return s.ID }

func (s StationFile) String() string {
	return fmt.Sprintf("%s @ %s [%s/%s]", s.Time.Format(time.DateTime), s.StationName, s.NetworkName, s.ID)
}

// ParseStation extracts station metadata from path. The second result is
// false when the name is not a raw station file.
func ParseStation(path string) (StationFile, bool) {
	m := stationPattern.FindStringSubmatch(baseName(path))
	if m == nil {
		return StationFile{}, false
	}
	ts, ok := parseStamp(m[4], m[5])
	if !ok {
		return StationFile{}, false
	}
	return StationFile{
		FilePath:    path,
		ID:          m[1],
		NetworkName: strings.ToLower(m[2]),
		StationName: m[3],
		Time:        ts,
	}, true
}
