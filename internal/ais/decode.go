package ais

import (
	"errors"
	"fmt"
	"math"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

var (
	// ErrUnsupported is returned for message types that are not decoded.
	ErrUnsupported = errors.New("unsupported message type")
	// ErrBitCount is returned when a payload has the wrong length for its type.
	ErrBitCount = errors.New("bad bit count")
)

// Message is a decoded AIS message.
type Message interface {
	MessageID() int
	UserID() int64
}

var (
	_ Message = (*models.PositionReport)(nil)
	_ Message = (*models.StaticVoyage)(nil)
)

// MessageType returns the message id of an armoured payload without decoding it.
func MessageType(payload string) (int, error) {
	if payload == "" {
		return 0, ErrMalformed
	}
	b, err := newBitBuffer(payload[:1], 0)
	if err != nil {
		return 0, err
	}
	return int(b.Uint(0, 6)), nil
}

// DecodePayload decodes a complete (reassembled) payload.
func DecodePayload(payload string, fill int) (Message, error) {
	b, err := newBitBuffer(payload, fill)
	if err != nil {
		return nil, err
	}
	if b.Len() < 38 {
		return nil, fmt.Errorf("%w: %d bits", ErrBitCount, b.Len())
	}

	id := int(b.Uint(0, 6))
	switch id {
	case 1, 2, 3:
		return decodePositionReport(b, id)
	case 5:
		return decodeStaticVoyage(b)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupported, id)
	}
}

func decodePositionReport(b *bitBuffer, id int) (*models.PositionReport, error) {
	if b.Len() != 168 {
		return nil, fmt.Errorf("%w: type %d has %d bits, want 168", ErrBitCount, id, b.Len())
	}

	rotRaw := b.Int(42, 8)
	rot := math.Pow(float64(rotRaw)/4.733, 2)
	if rotRaw < 0 {
		rot = -rot
	}

	p := &models.PositionReport{
		ID:               int32(id),
		RepeatIndicator:  int32(b.Uint(6, 2)),
		MMSI:             int64(b.Uint(8, 30)),
		NavStatus:        int32(b.Uint(38, 4)),
		RotOverRange:     rotRaw > 126 || rotRaw < -126,
		Rot:              float32(rot),
		Sog:              float32(b.Uint(50, 10)) / 10,
		PositionAccuracy: int32(b.Uint(60, 1)),
		X:                float64(b.Int(61, 28)) / 600000,
		Y:                float64(b.Int(89, 27)) / 600000,
		Cog:              float32(b.Uint(116, 12)) / 10,
		TrueHeading:      int32(b.Uint(128, 9)),
		Timestamp:        int32(b.Uint(137, 6)),
		SpecialManoeuvre: int32(b.Uint(143, 2)),
		Spare:            int32(b.Uint(145, 3)),
		Raim:             b.Bool(148),
		SyncState:        int32(b.Uint(149, 2)),
	}

	if id == 3 {
		p.SlotIncrement = int32Ptr(b.Uint(151, 13))
		p.SlotsToAllocate = int32Ptr(b.Uint(164, 3))
		keep := b.Bool(167)
		p.KeepFlag = &keep
		return p, nil
	}

	timeout := b.Uint(151, 3)
	p.SlotTimeout = int32Ptr(timeout)
	switch timeout {
	case 0:
		p.SlotOffset = int32Ptr(b.Uint(154, 14))
	case 1:
		p.UTCHour = int32Ptr(b.Uint(154, 5))
		p.UTCMin = int32Ptr(b.Uint(159, 7))
	case 2, 4, 6:
		p.SlotNumber = int32Ptr(b.Uint(154, 14))
	case 3, 5, 7:
		p.ReceivedStations = int32Ptr(b.Uint(154, 14))
	}
	return p, nil
}

func decodeStaticVoyage(b *bitBuffer) (*models.StaticVoyage, error) {
	// Some transponders drop the trailing dte/spare bits.
	if b.Len() < 420 || b.Len() > 426 {
		return nil, fmt.Errorf("%w: type 5 has %d bits, want 424", ErrBitCount, b.Len())
	}

	return &models.StaticVoyage{
		ID:                      5,
		RepeatIndicator:         int32(b.Uint(6, 2)),
		MMSI:                    int64(b.Uint(8, 30)),
		AISVersion:              int32(b.Uint(38, 2)),
		IMO:                     int64(b.Uint(40, 30)),
		CallSign:                b.Text(70, 42),
		ShipName:                b.Text(112, 120),
		TypeOfShipAndCargo:      int32(b.Uint(232, 8)),
		ToBow:                   int32(b.Uint(240, 9)),
		ToStern:                 int32(b.Uint(249, 9)),
		ToPort:                  int32(b.Uint(258, 6)),
		ToStarboard:             int32(b.Uint(264, 6)),
		PositionFixingDevice:    int32(b.Uint(270, 4)),
		ETA:                     fmt.Sprintf("%02d-%02dT%02d:%02d", b.Uint(274, 4), b.Uint(278, 5), b.Uint(283, 5), b.Uint(288, 6)),
		MaxPresentStaticDraught: float32(b.Uint(294, 8)) / 10,
		Destination:             b.Text(302, 120),
		DTE:                     b.Bool(422),
	}, nil
}

func int32Ptr(v uint64) *int32 {
	i := int32(v)
	return &i
}
