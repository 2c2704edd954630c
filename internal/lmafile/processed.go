package lmafile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// DCLMA_240601_100000_0300.dat.gz
	analysisPattern = regexp.MustCompile(`^([A-Za-z0-9]+)_(\d+)_(\d+)_(\d+)`)
	// DCLMA_20240601_100000_600_10src_1000.0m-dx_source_3d.nc
	gridPattern = regexp.MustCompile(`^([A-Za-z0-9]+)_(\d{8})_(\d{6})_(\d+)_(\d+)src_([A-Za-z0-9.]+)-dx_(.*)$`)
)

// AnalysisFile is the per-network output of one analysis run.
type AnalysisFile struct {
	FilePath    string
	NetworkName string
	Time        time.Time
	Misc        string
}

func (a AnalysisFile) Path() string         { return a.FilePath }
func (a AnalysisFile) Network() string      { return a.NetworkName }
func (a AnalysisFile) Timestamp() time.Time { return a.Time }

func (a AnalysisFile) String() string {
	return fmt.Sprintf("%s %s (%s)", a.NetworkName, a.Time.Format(time.DateTime), a.Misc)
}

// ParseAnalysis recognises <network>_<date>_<HHMMSS>_<misc> names, with the
// date written as YYMMDD or YYYYMMDD.
func ParseAnalysis(path string) (AnalysisFile, bool) {
	m := analysisPattern.FindStringSubmatch(baseName(path))
	if m == nil {
		return AnalysisFile{}, false
	}
	ts, ok := parseStamp(m[2], m[3])
	if !ok {
		return AnalysisFile{}, false
	}
	return AnalysisFile{
		FilePath:    path,
		NetworkName: strings.ToLower(m[1]),
		Time:        ts,
		Misc:        m[4],
	}, true
}

// GridFile is a gridded flash product.
type GridFile struct {
	FilePath        string
	Prefix          string
	Time            time.Time
	DurationSeconds int
	PointsPerFlash  int
	Units           string
	Suffix          string
}

// Network is the lower-cased prefix.
func (g GridFile) Network() string      { return strings.ToLower(g.Prefix) }
func (g GridFile) Path() string         { return g.FilePath }
func (g GridFile) Timestamp() time.Time { return g.Time }

// Duration is the span of data the grid covers.
func (g GridFile) Duration() time.Duration {
	return time.Duration(g.DurationSeconds) * time.Second
}

func (g GridFile) String() string {
	return fmt.Sprintf("%s %s +%s %s", g.Prefix, g.Time.Format(time.DateTime), g.Duration(), g.Suffix)
}

// ParseGrid recognises
// <prefix>_<YYYYMMDD>_<HHMMSS>_<duration>_<ppf>src_<units>-dx_<suffix>.
func ParseGrid(path string) (GridFile, bool) {
	m := gridPattern.FindStringSubmatch(baseName(path))
	if m == nil {
		return GridFile{}, false
	}
	ts, ok := parseStamp(m[2], m[3])
	if !ok {
		return GridFile{}, false
	}
	dur, err := strconv.Atoi(m[4])
	if err != nil {
		return GridFile{}, false
	}
	ppf, err := strconv.Atoi(m[5])
	if err != nil {
		return GridFile{}, false
	}
	return GridFile{
		FilePath:        path,
		Prefix:          m[1],
		Time:            ts,
		DurationSeconds: dur,
		PointsPerFlash:  ppf,
		Units:           m[6],
		Suffix:          m[7],
	}, true
}
