package ais

// Reference sentences shared by the package tests.
const (
	// Type 1, MMSI 477553000, moored in Seattle.
	type1Line = "!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C"

	// Same payload re-tagged as type 3 (ITDMA communication state).
	type3Line = "!AIVDM,1,1,,B,377KQJ5000G?tO`K>RA1wUbN0TKH,0*5E"

	// Type 5 for EVER DIADEM, split over two sentences.
	type5Part1 = "!AIVDM,2,1,1,A,55?MbV02;H;s<HtKR20EHE:0@T4@Dn2222222216L961O5Gf0NSQEp6ClRp8,0*1C"
	type5Part2 = "!AIVDM,2,2,1,A,88888888880,2*25"

	tagBlockFirst  = "\\g:1-2-1234,s:r003669945,c:1469664000*04\\"
	tagBlockSecond = "\\g:2-2-1234*59\\"
	tagBlockMillis = "\\s:rORBCOMM000,c:1469664000123*13\\"
)
