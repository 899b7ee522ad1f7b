package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/domain"
)

// Колонки строки дуги: init term capacity length fft b power [speed toll type]
const (
	minLinkColumns = 7
	maxLinkColumns = 10
)

// NetworkOptions controls network construction.
type NetworkOptions struct {
	AllowParallelLinks bool
}

// NetworkFile is a parsed TNTP network.
type NetworkFile struct {
	Network  *domain.Network
	Metadata Metadata
	Warnings []string
}

// LoadNetworkFile reads a TNTP network file from disk.
func LoadNetworkFile(path string, opts NetworkOptions) (*NetworkFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedNetworkFile, "cannot open network file").
			WithDetails("path", path)
	}
	defer f.Close()

	return ParseNetwork(f, opts)
}

// ParseNetwork reads a TNTP network from r.
//
// The optional header is a list of "<KEY> value" lines closed by
// "<END OF METADATA>". Everything after "~" is a comment. Each remaining line
// is one link: init term capacity length fft b power [speed toll type] with
// an optional trailing ";". b is the BPR alpha and power the BPR beta.
func ParseNetwork(r io.Reader, opts NetworkOptions) (*NetworkFile, error) {
	var netOpts []domain.NetworkOption
	if opts.AllowParallelLinks {
		netOpts = append(netOpts, domain.WithParallelLinks())
	}

	nf := &NetworkFile{Network: domain.NewNetwork(netOpts...)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	header := true
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		if header {
			if key, value, ok := parseMetadataLine(raw); ok {
				if key == KeyEndOfMetadata {
					header = false
					continue
				}
				if !nf.Metadata.set(key, value) {
					return nil, malformedNetwork(lineNo, "invalid value %q for <%s>", value, key)
				}
				continue
			}
		}

		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}
		header = false

		spec, err := parseLinkLine(line)
		if err != nil {
			return nil, malformedNetwork(lineNo, "%v", err)
		}
		if _, err := nf.Network.AddLink(spec); err != nil {
			var appErr *apperror.Error
			if errors.As(err, &appErr) {
				return nil, appErr.WithDetails("line", lineNo)
			}
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedNetworkFile, "failed to read network file")
	}

	net := nf.Network
	if net.LinkCount() == 0 {
		return nil, apperror.New(apperror.CodeEmptyNetwork, "network file contains no links")
	}
	if want := nf.Metadata.NumberOfLinks; want > 0 && int64(net.LinkCount()) != want {
		return nil, apperror.Newf(apperror.CodeMalformedNetworkFile,
			"header declares %d links, file contains %d", want, net.LinkCount()).
			WithDetails("declared", want).
			WithDetails("parsed", net.LinkCount())
	}
	if want := nf.Metadata.NumberOfNodes; want > 0 && int64(net.NodeCount()) != want {
		nf.Warnings = append(nf.Warnings,
			fmt.Sprintf("header declares %d nodes, links reference %d", want, net.NodeCount()))
	}

	return nf, nil
}

func parseLinkLine(line string) (domain.LinkSpec, error) {
	fields := strings.Fields(strings.ReplaceAll(line, ";", " "))
	if len(fields) < minLinkColumns || len(fields) > maxLinkColumns {
		return domain.LinkSpec{}, fmt.Errorf("expected %d to %d columns, got %d", minLinkColumns, maxLinkColumns, len(fields))
	}

	var spec domain.LinkSpec
	var err error
	if spec.From, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return spec, fmt.Errorf("init node %q is not an integer", fields[0])
	}
	if spec.To, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return spec, fmt.Errorf("term node %q is not an integer", fields[1])
	}

	numbers := []struct {
		name string
		dst  *float64
	}{
		{"capacity", &spec.Capacity},
		{"length", &spec.Length},
		{"free flow time", &spec.FreeFlowTime},
		{"b", &spec.Alpha},
		{"power", &spec.Beta},
	}
	for i, n := range numbers {
		v, err := parseFinite(fields[2+i])
		if err != nil {
			return spec, fmt.Errorf("%s %q is not a number", n.name, fields[2+i])
		}
		*n.dst = v
	}

	// speed и toll проверяются, но в модели не используются
	for i := minLinkColumns; i < len(fields) && i < 9; i++ {
		if _, err := parseFinite(fields[i]); err != nil {
			return spec, fmt.Errorf("column %d %q is not a number", i+1, fields[i])
		}
	}
	if len(fields) == maxLinkColumns {
		t, err := parseIntegral(fields[9])
		if err != nil {
			return spec, fmt.Errorf("link type %q is not an integer", fields[9])
		}
		spec.Type = t
	}

	return spec, nil
}

// parseIntegral принимает "3" и "3.0"
func parseIntegral(s string) (int, error) {
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := parseFinite(s)
	if err != nil || f != float64(int(f)) {
		return 0, strconv.ErrSyntax
	}
	return int(f), nil
}

func malformedNetwork(line int, format string, args ...any) error {
	return apperror.Newf(apperror.CodeMalformedNetworkFile, "line %d: "+format, append([]any{line}, args...)...).
		WithDetails("line", line)
}
