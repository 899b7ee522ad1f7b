// Package loader reads TNTP network, trip table and centroid files.
//
// Numbers are parsed with strconv only. The trip table is read by an explicit
// tokenizer; input text is never evaluated.
package loader

import (
	"math"
	"strconv"
	"strings"
)

// Metadata keys of the TNTP header.
const (
	KeyNumberOfZones = "NUMBER OF ZONES"
	KeyNumberOfNodes = "NUMBER OF NODES"
	KeyFirstThruNode = "FIRST THRU NODE"
	KeyNumberOfLinks = "NUMBER OF LINKS"
	KeyTotalODFlow   = "TOTAL OD FLOW"
	KeyEndOfMetadata = "END OF METADATA"
)

// Metadata header of a TNTP file. Zero values mean "not declared".
type Metadata struct {
	NumberOfZones int64
	NumberOfNodes int64
	FirstThruNode int64
	NumberOfLinks int64
	TotalODFlow   float64
	HasTotal      bool
	Extra         map[string]string
}

// parseMetadataLine разбирает строку вида "<KEY> value"
func parseMetadataLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "<") {
		return "", "", false
	}
	end := strings.Index(line, ">")
	if end < 0 {
		return "", "", false
	}
	return strings.ToUpper(strings.TrimSpace(line[1:end])), strings.TrimSpace(line[end+1:]), true
}

// set записывает значение ключа; false если число не разобрано
func (m *Metadata) set(key, value string) bool {
	intValue := func(dst *int64) bool {
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil || v < 0 {
			return false
		}
		*dst = v
		return true
	}

	switch key {
	case KeyNumberOfZones:
		return intValue(&m.NumberOfZones)
	case KeyNumberOfNodes:
		return intValue(&m.NumberOfNodes)
	case KeyFirstThruNode:
		return intValue(&m.FirstThruNode)
	case KeyNumberOfLinks:
		return intValue(&m.NumberOfLinks)
	case KeyTotalODFlow:
		v, err := parseFinite(value)
		if err != nil {
			return false
		}
		m.TotalODFlow, m.HasTotal = v, true
		return true
	default:
		if m.Extra == nil {
			m.Extra = make(map[string]string)
		}
		m.Extra[key] = value
		return true
	}
}

// stripComment отбрасывает всё начиная с "~"
func stripComment(line string) string {
	if i := strings.IndexByte(line, '~'); i >= 0 {
		return line[:i]
	}
	return line
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}
