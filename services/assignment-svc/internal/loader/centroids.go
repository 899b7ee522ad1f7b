package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/domain"
)

// LoadCentroidFile reads a zone to centroid mapping from disk.
func LoadCentroidFile(path string) (*domain.ZoneCentroidMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedCentroids, "cannot open centroid file").
			WithDetails("path", path)
	}
	defer f.Close()

	return ParseCentroids(f)
}

// ParseCentroids reads lines of the form "zone: node node ...". Blank lines
// and text after "~" or "#" are ignored. A zone listed twice is an error.
func ParseCentroids(r io.Reader) (*domain.ZoneCentroidMap, error) {
	m := domain.NewZoneCentroidMap()
	seen := make(map[int64]int)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		head, rest, ok := strings.Cut(line, ":")
		if !ok {
			return nil, malformedCentroids(lineNo, "expected \"zone: node ...\"")
		}
		zone, err := strconv.ParseInt(strings.TrimSpace(head), 10, 64)
		if err != nil {
			return nil, malformedCentroids(lineNo, "zone %q is not an integer", strings.TrimSpace(head))
		}
		if prev, dup := seen[zone]; dup {
			return nil, malformedCentroids(lineNo, "zone %d already listed on line %d", zone, prev)
		}
		seen[zone] = lineNo

		fields := strings.Fields(strings.ReplaceAll(rest, ",", " "))
		if len(fields) == 0 {
			return nil, malformedCentroids(lineNo, "zone %d has no centroid", zone)
		}
		nodes := make([]int64, 0, len(fields))
		for _, f := range fields {
			n, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return nil, malformedCentroids(lineNo, "node %q is not an integer", f)
			}
			nodes = append(nodes, n)
		}
		if err := m.Assign(zone, nodes...); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedCentroids, "failed to read centroid file")
	}
	return m, nil
}

// Centroids returns the mapping from path, or the identity mapping over the
// zones of demand when path is empty.
func Centroids(path string, demand *domain.DemandMatrix) (*domain.ZoneCentroidMap, error) {
	if path == "" {
		return domain.IdentityCentroids(demand.Zones()), nil
	}
	return LoadCentroidFile(path)
}

func malformedCentroids(line int, format string, args ...any) error {
	return apperror.Newf(apperror.CodeMalformedCentroids, "line %d: %s", line, fmt.Sprintf(format, args...)).
		WithDetails("line", line)
}
