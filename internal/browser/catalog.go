package browser

import (
	"maps"
	"slices"
	"strings"

	"github.com/XR-at-CISESS/lma-data/internal/lmafile"
)

// Catalog indexes raw station files by network and station.
type Catalog struct {
	networks map[string]map[string][]lmafile.StationFile
	size     int
}

// NewCatalog indexes files. Each station's list is kept sorted.
func NewCatalog(files []lmafile.StationFile) *Catalog {
	c := &Catalog{networks: make(map[string]map[string][]lmafile.StationFile)}
	for _, f := range files {
		stations, ok := c.networks[f.Network()]
		if !ok {
			stations = make(map[string][]lmafile.StationFile)
			c.networks[f.Network()] = stations
		}
		stations[f.ID] = append(stations[f.ID], f)
		c.size++
	}
	for _, stations := range c.networks {
		for _, list := range stations {
			lmafile.Sort(list)
		}
	}
	return c
}

func (c *Catalog) Len() int { return c.size }

// Networks lists indexed networks in lexical order.
func (c *Catalog) Networks() []string {
	return slices.Sorted(maps.Keys(c.networks))
}

// Stations lists the station identifiers seen for network.
func (c *Catalog) Stations(network string) []string {
	return slices.Sorted(maps.Keys(c.networks[strings.ToLower(network)]))
}

// Station returns the sorted files of one station, or nil.
func (c *Catalog) Station(network, id string) []lmafile.StationFile {
	stations, ok := c.networks[strings.ToLower(network)]
	if !ok {
		return nil
	}
	return stations[id]
}
