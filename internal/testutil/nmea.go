// Package testutil holds fixtures shared by handler and command tests.
package testutil

import "strings"

// Reference sentences. The type 1 and 3 reports belong to MMSI 477553000;
// the two-part type 5 report is EVER DIADEM, MMSI 351759000.
const (
	Type1Line  = "!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C"
	Type3Line  = "!AIVDM,1,1,,B,377KQJ5000G?tO`K>RA1wUbN0TKH,0*5E"
	Type5Part1 = "!AIVDM,2,1,1,A,55?MbV02;H;s<HtKR20EHE:0@T4@Dn2222222216L961O5Gf0NSQEp6ClRp8,0*1C"
	Type5Part2 = "!AIVDM,2,2,1,A,88888888880,2*25"

	// Tag block carrying c:1469664000 (2016-07-28 00:00:00 UTC) in milliseconds.
	TagBlockMillis = "\\s:rORBCOMM000,c:1469664000123*13\\"
	TagBlockFirst  = "\\g:1-2-1234,s:r003669945,c:1469664000*04\\"
	TagBlockSecond = "\\g:2-2-1234*59\\"

	PositionMMSI = 477553000
	StaticMMSI   = 351759000
)

// SampleFeed returns n repetitions of a five line block: two timestamped
// position reports, one two-part static report and a line of noise.
func SampleFeed(n int) string {
	block := []string{
		TagBlockMillis + Type1Line,
		TagBlockMillis + Type3Line,
		TagBlockFirst + Type5Part1,
		TagBlockSecond + Type5Part2,
		"$GPGGA,noise",
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		for _, line := range block {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
