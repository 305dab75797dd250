package ais

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

func TestDecoder_DecodeLines(t *testing.T) {
	lines := []string{
		tagBlockFirst + type5Part1,
		tagBlockSecond + type5Part2,
		tagBlockMillis + type1Line,
		type3Line,
		"garbage",
		"!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*00",
		"",
	}

	d := NewDecoder()
	msgs := d.DecodeLines(lines)
	require.Len(t, msgs, 3)

	static, ok := msgs[0].(*models.StaticVoyage)
	require.True(t, ok)
	assert.Equal(t, "EVER DIADEM", static.ShipName)
	assert.Equal(t, int64(1469664000), static.TagBlock.Timestamp)
	require.NotNil(t, static.Group)
	assert.Equal(t, 1234, static.Group.GroupID)

	pos, ok := msgs[1].(*models.PositionReport)
	require.True(t, ok)
	assert.Equal(t, int64(1469664000), pos.TagBlock.Timestamp)
	assert.Equal(t, "rORBCOMM000", pos.Station)

	stats := d.Stats()
	assert.Equal(t, 7, stats.Lines)
	assert.Equal(t, 4, stats.Sentences)
	assert.Equal(t, map[int]int{1: 1, 3: 1, 5: 1}, stats.Decoded)
	assert.Equal(t, 2, stats.Errors[ReasonNotAIS])
	assert.Equal(t, 1, stats.Errors[ReasonChecksum])
	assert.Equal(t, 3, stats.ErrorCount())
}

func TestDecoder_TypeFilter(t *testing.T) {
	d := NewDecoder(5)

	msg, err := d.DecodeLine(type1Line)
	assert.NoError(t, err)
	assert.Nil(t, msg)

	_, err = d.DecodeLine(type5Part1)
	require.NoError(t, err)
	msg, err = d.DecodeLine(type5Part2)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, 5, msg.MessageID())
	assert.Equal(t, int64(351759000), msg.UserID())

	stats := d.Stats()
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Decoded[5])
}

func TestDecoder_UnsupportedTypeIsSkipped(t *testing.T) {
	d := NewDecoder()
	// class B position report
	line := "!AIVDM,1,1,,B,B52K>;h00Fc>jpUlNV@ikwpUoP06,0*4F"

	msg, err := d.DecodeLine(line)
	assert.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, 1, d.Stats().Skipped)
}

func TestStats_Merge(t *testing.T) {
	var total Stats
	total.Merge(Stats{Lines: 3, Sentences: 2, Decoded: map[int]int{1: 2}, Errors: map[string]int{ReasonChecksum: 1}})
	total.Merge(Stats{Lines: 1, Sentences: 1, Decoded: map[int]int{1: 1, 5: 1}, Skipped: 1})

	assert.Equal(t, 4, total.Lines)
	assert.Equal(t, 3, total.Sentences)
	assert.Equal(t, 1, total.Skipped)
	assert.Equal(t, map[int]int{1: 3, 5: 1}, total.Decoded)
	assert.Equal(t, 1, total.ErrorCount())
}
