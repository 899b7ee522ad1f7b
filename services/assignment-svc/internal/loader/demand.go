package loader

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/domain"
)

// totalFlowTolerance относительное расхождение TOTAL OD FLOW, после которого
// выдаётся предупреждение
const totalFlowTolerance = 1e-6

// DemandFile is a parsed TNTP trip table.
type DemandFile struct {
	Matrix   *domain.DemandMatrix
	Metadata Metadata
	// ParsedTotal is the sum of all stored values, intrazonal included.
	ParsedTotal float64
	Warnings    []string
}

// LoadDemandFile reads a TNTP trip table from disk.
func LoadDemandFile(path string) (*DemandFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedDemandFile, "cannot read demand file").
			WithDetails("path", path)
	}
	return parseDemand(string(data))
}

// ParseDemand reads a TNTP trip table from r.
//
// Values <= 0 are not stored. A repeated destination within a block or a
// repeated origin block overwrites the earlier value. The matrix size is the
// largest zone id seen; when the header declares NUMBER OF ZONES a larger id
// is an error.
func ParseDemand(r io.Reader) (*DemandFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedDemandFile, "failed to read demand file")
	}
	return parseDemand(string(data))
}

type demandParser struct {
	tz   *tokenizer
	tok  token
	meta Metadata

	values map[domain.ODPair]float64
	zones  map[int64]struct{}
}

func parseDemand(src string) (*DemandFile, error) {
	p := &demandParser{
		tz:     newTokenizer(src),
		values: make(map[domain.ODPair]float64),
		zones:  make(map[int64]struct{}),
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.build()
}

func (p *demandParser) advance() error {
	tok, err := p.tz.next()
	if err != nil {
		return apperror.Wrap(err, apperror.CodeMalformedDemandFile, "invalid demand file")
	}
	p.tok = tok
	return nil
}

func (p *demandParser) fail(format string, args ...any) error {
	return apperror.Newf(apperror.CodeMalformedDemandFile, "line %d: %s", p.tok.line, fmt.Sprintf(format, args...)).
		WithDetails("line", p.tok.line)
}

func (p *demandParser) skipNewlines() error {
	for p.tok.kind == tokNewline {
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

func (p *demandParser) parse() error {
	if err := p.parseMetadata(); err != nil {
		return err
	}

	for {
		if err := p.skipNewlines(); err != nil {
			return err
		}
		switch p.tok.kind {
		case tokEOF:
			return nil
		case tokOrigin:
			if err := p.parseBlock(); err != nil {
				return err
			}
		default:
			return p.fail("expected Origin, got %s", p.tok.kind)
		}
	}
}

func (p *demandParser) parseMetadata() error {
	for {
		if err := p.skipNewlines(); err != nil {
			return err
		}
		if p.tok.kind != tokMeta {
			return nil
		}
		key, value, ok := parseMetadataLine(p.tok.text)
		if !ok {
			return p.fail("malformed metadata line %q", p.tok.text)
		}
		if key == KeyEndOfMetadata {
			return p.advance()
		}
		if !p.meta.set(key, value) {
			return p.fail("invalid value %q for <%s>", value, key)
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
}

func (p *demandParser) zone(text, role string) (int64, error) {
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil || v < 1 {
		return 0, p.fail("%s zone %q is not a positive integer", role, text)
	}
	if n := p.meta.NumberOfZones; n > 0 && v > n {
		return 0, p.fail("%s zone %d exceeds declared number of zones %d", role, v, n)
	}
	p.zones[v] = struct{}{}
	return v, nil
}

func (p *demandParser) parseBlock() error {
	if err := p.advance(); err != nil {
		return err
	}
	if p.tok.kind != tokNumber {
		return p.fail("expected origin zone after Origin, got %s", p.tok.kind)
	}
	origin, err := p.zone(p.tok.text, "origin")
	if err != nil {
		return err
	}
	if err := p.advance(); err != nil {
		return err
	}

	for {
		if err := p.skipNewlines(); err != nil {
			return err
		}
		if p.tok.kind == tokOrigin || p.tok.kind == tokEOF {
			return nil
		}
		if err := p.parseEntry(origin); err != nil {
			return err
		}
	}
}

func (p *demandParser) parseEntry(origin int64) error {
	if p.tok.kind != tokNumber {
		return p.fail("expected destination zone, got %s", p.tok.kind)
	}
	dest, err := p.zone(p.tok.text, "destination")
	if err != nil {
		return err
	}

	if err := p.advance(); err != nil {
		return err
	}
	if p.tok.kind != tokColon {
		return p.fail("expected ':' after destination %d, got %s", dest, p.tok.kind)
	}

	if err := p.advance(); err != nil {
		return err
	}
	if p.tok.kind != tokNumber {
		return p.fail("expected demand value for %d->%d, got %s", origin, dest, p.tok.kind)
	}
	value, err := parseFinite(p.tok.text)
	if err != nil {
		return p.fail("demand value %q for %d->%d is not a number", p.tok.text, origin, dest)
	}

	if err := p.advance(); err != nil {
		return err
	}
	switch p.tok.kind {
	case tokSemicolon:
		if err := p.advance(); err != nil {
			return err
		}
	case tokNewline, tokEOF, tokOrigin:
	default:
		return p.fail("expected ';' after demand value for %d->%d, got %s", origin, dest, p.tok.kind)
	}

	pair := domain.ODPair{Origin: origin, Destination: dest}
	if value > 0 {
		p.values[pair] = value
	} else {
		delete(p.values, pair)
	}
	return nil
}

func (p *demandParser) build() (*DemandFile, error) {
	df := &DemandFile{Matrix: domain.NewDemandMatrix(), Metadata: p.meta}

	pairs := make([]domain.ODPair, 0, len(p.values))
	for pair := range p.values {
		pairs = append(pairs, pair)
	}
	slices.SortFunc(pairs, func(a, b domain.ODPair) int {
		if a.Origin != b.Origin {
			return cmp.Compare(a.Origin, b.Origin)
		}
		return cmp.Compare(a.Destination, b.Destination)
	})
	for _, pair := range pairs {
		v := p.values[pair]
		if err := df.Matrix.Set(pair.Origin, pair.Destination, v); err != nil {
			return nil, err
		}
		df.ParsedTotal += v
	}
	for z := range p.zones {
		df.Matrix.ObserveZone(z)
	}

	if p.meta.HasTotal {
		declared := p.meta.TotalODFlow
		diff := math.Abs(declared - df.ParsedTotal)
		if diff > totalFlowTolerance*math.Max(1, math.Abs(declared)) {
			df.Warnings = append(df.Warnings,
				fmt.Sprintf("header declares total OD flow %g, parsed %g", declared, df.ParsedTotal))
		}
	}

	return df, nil
}
