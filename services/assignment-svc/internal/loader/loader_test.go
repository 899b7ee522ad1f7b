package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/domain"
)

const siouxHead = `<NUMBER OF ZONES> 3
<NUMBER OF NODES> 3
<FIRST THRU NODE> 1
<NUMBER OF LINKS> 3
<ORIGINAL HEADER>~ 	Init node 	Term node 	Capacity 	Length 	Free Flow Time 	B	Power	Speed limit 	Toll 	Type	;
<END OF METADATA>


~ 	init_node	term_node	capacity	length	free_flow_time	b	power	speed	toll	link_type	;
	1	2	25900.20064	6	6	0.15	4	0	0	1	;
	1	3	23403.47319	4	4	0.15	4	0	0	1	;
	2	1	25900.20064	6	6	0.15	4	0	0	1	;
`

func TestParseNetwork_TNTP(t *testing.T) {
	nf, err := ParseNetwork(strings.NewReader(siouxHead), NetworkOptions{})
	require.NoError(t, err)

	net := nf.Network
	assert.Equal(t, 3, net.LinkCount())
	assert.Equal(t, []int64{1, 2, 3}, net.Nodes())

	l, ok := net.Link(1)
	require.True(t, ok)
	assert.Equal(t, int64(1), l.From)
	assert.Equal(t, int64(3), l.To)
	assert.Equal(t, 23403.47319, l.Capacity)
	assert.Equal(t, 4.0, l.Length)
	assert.Equal(t, 4.0, l.FreeFlowTime)
	assert.Equal(t, 0.15, l.Alpha)
	assert.Equal(t, 4.0, l.Beta)
	assert.Equal(t, 1, l.Type)

	assert.Equal(t, int64(3), nf.Metadata.NumberOfZones)
	assert.Equal(t, int64(3), nf.Metadata.NumberOfLinks)
	assert.Contains(t, nf.Metadata.Extra, "ORIGINAL HEADER")
	assert.Empty(t, nf.Warnings)
}

func TestParseNetwork_NoMetadataAndShortRows(t *testing.T) {
	src := "1 2 10 1 2 0.15 4\n2 3 10 1 2 0.15 4;\n\n3 1 5 1 2 0 1 ;\n"
	nf, err := ParseNetwork(strings.NewReader(src), NetworkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, nf.Network.LinkCount())

	l, _ := nf.Network.Link(2)
	assert.Equal(t, 0, l.Type, "missing type defaults to 0")
	assert.Equal(t, 0.0, l.Alpha)
}

func TestParseNetwork_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code apperror.ErrorCode
		line int
	}{
		{"too few columns", "1 2 10 1 2 0.15\n", apperror.CodeMalformedNetworkFile, 1},
		{"too many columns", "1 2 10 1 2 0.15 4 0 0 1 9\n", apperror.CodeMalformedNetworkFile, 1},
		{"bad node", "1 x 10 1 2 0.15 4\n", apperror.CodeMalformedNetworkFile, 1},
		{"bad capacity", "1 2 10 1 2 0.15 4\n2 3 abc 1 2 0.15 4\n", apperror.CodeMalformedNetworkFile, 2},
		{"nan fft", "1 2 10 1 NaN 0.15 4\n", apperror.CodeMalformedNetworkFile, 1},
		{"bad type", "1 2 10 1 2 0.15 4 0 0 1.5\n", apperror.CodeMalformedNetworkFile, 1},
		{"zero capacity", "1 2 10 1 2 0.15 4\n\n2 3 0 1 2 0.15 4\n", apperror.CodeNonPositiveCapacity, 3},
		{"duplicate", "1 2 10 1 2 0.15 4\n1 2 10 1 2 0.15 4\n", apperror.CodeDuplicateLink, 2},
		{"bad metadata", "<NUMBER OF LINKS> many\n<END OF METADATA>\n", apperror.CodeMalformedNetworkFile, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNetwork(strings.NewReader(tt.src), NetworkOptions{})
			require.Error(t, err)
			assert.True(t, apperror.Is(err, tt.code), "got %v", err)

			var appErr *apperror.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.line, appErr.Details["line"])
		})
	}
}

func TestParseNetwork_LinkCountMismatch(t *testing.T) {
	src := "<NUMBER OF LINKS> 2\n<END OF METADATA>\n1 2 10 1 2 0.15 4\n"
	_, err := ParseNetwork(strings.NewReader(src), NetworkOptions{})
	assert.True(t, apperror.Is(err, apperror.CodeMalformedNetworkFile), "got %v", err)
	assert.Contains(t, err.Error(), "declares 2 links")
}

func TestParseNetwork_Empty(t *testing.T) {
	_, err := ParseNetwork(strings.NewReader("~ only a comment\n"), NetworkOptions{})
	assert.True(t, apperror.Is(err, apperror.CodeEmptyNetwork))
}

func TestParseNetwork_ParallelLinks(t *testing.T) {
	src := "1 2 10 1 1 0.15 4\n1 2 5 1 2 0.15 4\n"
	nf, err := ParseNetwork(strings.NewReader(src), NetworkOptions{AllowParallelLinks: true})
	require.NoError(t, err)
	assert.Equal(t, 2, nf.Network.LinkCount())
}

func TestParseNetwork_NodeCountWarning(t *testing.T) {
	src := "<NUMBER OF NODES> 5\n<END OF METADATA>\n1 2 10 1 1 0.15 4\n"
	nf, err := ParseNetwork(strings.NewReader(src), NetworkOptions{})
	require.NoError(t, err)
	require.Len(t, nf.Warnings, 1)
	assert.Contains(t, nf.Warnings[0], "5 nodes")
}

const tripsSrc = `<NUMBER OF ZONES> 3
<TOTAL OD FLOW> 600.0
<END OF METADATA>


Origin  1
    1 :      0.0;     2 :    100.0;     3 :    200.0;

Origin  2
    1 :    100.0;     2 :      0.0;     3 :    200.0;
`

func TestParseDemand_TNTP(t *testing.T) {
	df, err := ParseDemand(strings.NewReader(tripsSrc))
	require.NoError(t, err)

	m := df.Matrix
	assert.Equal(t, 4, m.Len(), "zero values are not stored")
	assert.Equal(t, int64(3), m.Size())
	assert.Equal(t, 600.0, df.ParsedTotal)
	assert.Empty(t, df.Warnings)

	v, ok := m.Get(1, 3)
	assert.True(t, ok)
	assert.Equal(t, 200.0, v)
	_, ok = m.Get(1, 1)
	assert.False(t, ok)

	assert.Equal(t, int64(3), df.Metadata.NumberOfZones)
	assert.True(t, df.Metadata.HasTotal)
}

func TestParseDemand_GrammarVariants(t *testing.T) {
	src := "Origin 4\n 1 : 5\n 2 : 1e1 ~ comment\nOrigin 2 3:2.5; 4:-1;\n\n"
	df, err := ParseDemand(strings.NewReader(src))
	require.NoError(t, err)

	m := df.Matrix
	assert.Equal(t, int64(4), m.Size())
	v, _ := m.Get(4, 2)
	assert.Equal(t, 10.0, v)
	v, _ = m.Get(2, 3)
	assert.Equal(t, 2.5, v)
	_, ok := m.Get(2, 4)
	assert.False(t, ok, "negative value is treated as absent")
}

func TestParseDemand_LastValueWins(t *testing.T) {
	src := "Origin 1\n2 : 5; 2 : 7;\nOrigin 1\n3 : 1;\nOrigin 2\n1 : 4;\nOrigin 2\n1 : 0;\n"
	df, err := ParseDemand(strings.NewReader(src))
	require.NoError(t, err)

	v, _ := df.Matrix.Get(1, 2)
	assert.Equal(t, 7.0, v)
	v, _ = df.Matrix.Get(1, 3)
	assert.Equal(t, 1.0, v, "a repeated block keeps other destinations")
	_, ok := df.Matrix.Get(2, 1)
	assert.False(t, ok, "a later non-positive value removes the entry")
}

func TestParseDemand_Size(t *testing.T) {
	df, err := ParseDemand(strings.NewReader("Origin 1\n 9 : 0;\nOrigin 5\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), df.Matrix.Size(), "size covers destination keys with zero demand")
	assert.Equal(t, 0, df.Matrix.Len())
}

func TestParseDemand_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing origin", "1 : 5;\n"},
		{"bad origin", "Origin x\n"},
		{"zero origin", "Origin 0\n1 : 5;\n"},
		{"missing colon", "Origin 1\n2 5;\n"},
		{"missing value", "Origin 1\n2 : ;\n"},
		{"missing separator", "Origin 1\n2 : 5 3 : 4;\n"},
		{"bad number", "Origin 1\n2 : 1.2.3;\n"},
		{"unknown word", "Origin 1\nDestination 2 : 5;\n"},
		{"code injection", "Origin 1\n2 : __import__('os');\n"},
		{"zone above declared", "<NUMBER OF ZONES> 2\n<END OF METADATA>\nOrigin 1\n3 : 5;\n"},
		{"metadata after data", "Origin 1\n2 : 5;\n<TOTAL OD FLOW> 5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDemand(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.CodeMalformedDemandFile), "got %v", err)
		})
	}
}

func TestParseDemand_TotalMismatchWarns(t *testing.T) {
	src := "<TOTAL OD FLOW> 50\n<END OF METADATA>\nOrigin 1\n2 : 5;\n"
	df, err := ParseDemand(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, df.Warnings, 1)
	assert.Contains(t, df.Warnings[0], "total OD flow 50")
}

func TestParseCentroids(t *testing.T) {
	src := "# zone: nodes\n1: 10 11\n2 : 20 ~ main\n\n3: 30, 31\n"
	m, err := ParseCentroids(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, m.Zones())
	c, _ := m.Centroids(3)
	assert.Equal(t, []int64{30, 31}, c)

	for _, bad := range []string{"1 10\n", "x: 1\n", "1:\n", "1: a\n", "1: 2\n1: 3\n"} {
		_, err := ParseCentroids(strings.NewReader(bad))
		assert.True(t, apperror.Is(err, apperror.CodeMalformedCentroids), "%q: %v", bad, err)
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	netPath := filepath.Join(dir, "net.tntp")
	tripsPath := filepath.Join(dir, "trips.tntp")
	centPath := filepath.Join(dir, "centroids.txt")
	require.NoError(t, os.WriteFile(netPath, []byte(siouxHead), 0o644))
	require.NoError(t, os.WriteFile(tripsPath, []byte(tripsSrc), 0o644))
	require.NoError(t, os.WriteFile(centPath, []byte("1: 1\n2: 2\n3: 3\n"), 0o644))

	nf, err := LoadNetworkFile(netPath, NetworkOptions{})
	require.NoError(t, err)
	df, err := LoadDemandFile(tripsPath)
	require.NoError(t, err)

	ident, err := Centroids("", df.Matrix)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ident.Zones())
	assert.NoError(t, ident.Validate(nf.Network))

	fromFile, err := Centroids(centPath, df.Matrix)
	require.NoError(t, err)
	assert.Equal(t, 3, fromFile.Len())

	_, err = LoadNetworkFile(filepath.Join(dir, "missing"), NetworkOptions{})
	assert.True(t, apperror.Is(err, apperror.CodeMalformedNetworkFile))
	_, err = LoadDemandFile(filepath.Join(dir, "missing"))
	assert.True(t, apperror.Is(err, apperror.CodeMalformedDemandFile))
	_, err = LoadCentroidFile(filepath.Join(dir, "missing"))
	assert.True(t, apperror.Is(err, apperror.CodeMalformedCentroids))
}

func TestDemandMatrixFeedsIdentityCentroids(t *testing.T) {
	df, err := ParseDemand(strings.NewReader("Origin 2\n5 : 1;\n"))
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5}, domain.IdentityCentroids(df.Matrix.Zones()).Zones())
}
