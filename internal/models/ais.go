// Package models contains domain types for maritimeviz.
package models

import (
	"encoding/json"
	"time"
)

// Position "not available" sentinels as broadcast by transponders.
const (
	LonNotAvailable     = 181.0
	LatNotAvailable     = 91.0
	SogNotAvailable     = 102.3
	CogNotAvailable     = 360.0
	HeadingNotAvailable = 511
)

// TagBlock holds the NMEA 4.0 tag block fields that precede a sentence.
type TagBlock struct {
	Timestamp    int64     `json:"tagblock_timestamp,omitempty"` // unix seconds (c:)
	Station      string    `json:"tagblock_station,omitempty"`   // s:
	LineCount    int32     `json:"tagblock_line_count,omitempty"`
	RelativeTime int64     `json:"tagblock_relative_time,omitempty"`
	Destination  string    `json:"tagblock_destination,omitempty"`
	Text         string    `json:"tagblock_text,omitempty"`
	Group        *TagGroup `json:"tagblock_group,omitempty"`
}

// TagGroup is the g: field of a tag block, linking the lines of one message.
type TagGroup struct {
	Sentence    int `json:"sentence"`
	SentenceTot int `json:"sentence_tot"`
	GroupID     int `json:"group_id"`
}

// GroupJSON returns the group as a JSON object, "{}" when absent.
func (t TagBlock) GroupJSON() string {
	if t.Group == nil {
		return "{}"
	}
	b, err := json.Marshal(t.Group)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Time returns the tag block timestamp as UTC time, zero if unset.
func (t TagBlock) Time() time.Time {
	if t.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(t.Timestamp, 0).UTC()
}

// PositionReport is a class A position report (message types 1, 2 and 3).
type PositionReport struct {
	ID               int32   `json:"id"`
	RepeatIndicator  int32   `json:"repeat_indicator"`
	MMSI             int64   `json:"mmsi"`
	NavStatus        int32   `json:"nav_status"`
	RotOverRange     bool    `json:"rot_over_range"`
	Rot              float32 `json:"rot"`
	Sog              float32 `json:"sog"`
	PositionAccuracy int32   `json:"position_accuracy"`
	X                float64 `json:"x"`
	Y                float64 `json:"y"`
	Cog              float32 `json:"cog"`
	TrueHeading      int32   `json:"true_heading"`
	Timestamp        int32   `json:"timestamp"`
	SpecialManoeuvre int32   `json:"special_manoeuvre"`
	Spare            int32   `json:"spare"`
	Raim             bool    `json:"raim"`
	SyncState        int32   `json:"sync_state"`

	// SOTDMA (types 1 and 2)
	SlotTimeout      *int32 `json:"slot_timeout,omitempty"`
	SlotNumber       *int32 `json:"slot_number,omitempty"`
	ReceivedStations *int32 `json:"received_stations,omitempty"`
	SlotOffset       *int32 `json:"slot_offset,omitempty"`
	UTCHour          *int32 `json:"utc_hour,omitempty"`
	UTCMin           *int32 `json:"utc_min,omitempty"`

	// ITDMA (type 3)
	SlotIncrement   *int32 `json:"slot_increment,omitempty"`
	SlotsToAllocate *int32 `json:"slots_to_allocate,omitempty"`
	KeepFlag        *bool  `json:"keep_flag,omitempty"`

	TagBlock
}

// MessageID implements ais.Message.
func (p *PositionReport) MessageID() int { return int(p.ID) }

// UserID implements ais.Message.
func (p *PositionReport) UserID() int64 { return p.MMSI }

// Valid reports whether the report carries a usable position.
func (p *PositionReport) Valid() bool {
	if p.X < -180 || p.X > 180 || p.Y < -90 || p.Y > 90 {
		return false
	}
	return p.X != LonNotAvailable && p.Y != LatNotAvailable
}

// StaticVoyage is a static and voyage related data report (message type 5).
type StaticVoyage struct {
	ID                      int32   `json:"id"`
	RepeatIndicator         int32   `json:"repeat_indicator"`
	MMSI                    int64   `json:"mmsi"`
	AISVersion              int32   `json:"ais_version"`
	IMO                     int64   `json:"imo"`
	CallSign                string  `json:"call_sign"`
	ShipName                string  `json:"ship_name"`
	TypeOfShipAndCargo      int32   `json:"type_of_ship_and_cargo"`
	ToBow                   int32   `json:"to_bow"`
	ToStern                 int32   `json:"to_stern"`
	ToPort                  int32   `json:"to_port"`
	ToStarboard             int32   `json:"to_starboard"`
	PositionFixingDevice    int32   `json:"position_fixing_device"`
	ETA                     string  `json:"eta"`
	MaxPresentStaticDraught float32 `json:"max_present_static_draught"`
	Destination             string  `json:"destination"`
	DTE                     bool    `json:"dte"`

	TagBlock
}

// MessageID implements ais.Message.
func (s *StaticVoyage) MessageID() int { return int(s.ID) }

// UserID implements ais.Message.
func (s *StaticVoyage) UserID() int64 { return s.MMSI }

// Length returns the overall length of the vessel in metres.
func (s *StaticVoyage) Length() int32 { return s.ToBow + s.ToStern }

// Beam returns the width of the vessel in metres.
func (s *StaticVoyage) Beam() int32 { return s.ToPort + s.ToStarboard }

// VesselSummary aggregates what the database knows about one MMSI.
type VesselSummary struct {
	MMSI      int64     `json:"mmsi" msgpack:"mmsi"`
	ShipName  string    `json:"ship_name,omitempty" msgpack:"ship_name,omitempty"`
	Positions int64     `json:"positions" msgpack:"positions"`
	FirstSeen time.Time `json:"first_seen" msgpack:"first_seen"`
	LastSeen  time.Time `json:"last_seen" msgpack:"last_seen"`
}

// TimeRange represents a time window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DatabaseStats summarises the stored tables.
type DatabaseStats struct {
	PositionReports int64      `json:"position_reports"`
	StaticReports   int64      `json:"static_reports"`
	Vessels         int64      `json:"vessels"`
	TimeRange       *TimeRange `json:"time_range,omitempty"`
}
