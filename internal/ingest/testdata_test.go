package ingest

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	type1Line  = "!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C"
	type3Line  = "!AIVDM,1,1,,B,377KQJ5000G?tO`K>RA1wUbN0TKH,0*5E"
	type5Part1 = "!AIVDM,2,1,1,A,55?MbV02;H;s<HtKR20EHE:0@T4@Dn2222222216L961O5Gf0NSQEp6ClRp8,0*1C"
	type5Part2 = "!AIVDM,2,2,1,A,88888888880,2*25"

	tagBlockFirst  = "\\g:1-2-1234,s:r003669945,c:1469664000*04\\"
	tagBlockSecond = "\\g:2-2-1234*59\\"
	tagBlockMillis = "\\s:rORBCOMM000,c:1469664000123*13\\"
)

// sampleBlock is one repetition of the sample feed: two position reports,
// one two-part static report and a line of noise.
var sampleBlock = []string{
	tagBlockMillis + type1Line,
	type3Line,
	tagBlockFirst + type5Part1,
	tagBlockSecond + type5Part2,
	"$GPGGA,noise",
}

func sampleLines(n int) []string {
	lines := make([]string, 0, n*len(sampleBlock))
	for i := 0; i < n; i++ {
		lines = append(lines, sampleBlock...)
	}
	return lines
}

func writeSample(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.nmea")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(sampleLines(n), "\n")+"\n"), 0o644))
	return path
}

func writeGzipSample(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.nmea.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(strings.Join(sampleLines(n), "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}
