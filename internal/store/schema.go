package store

// tagblock_group holds a JSON object as text so the column stays readable
// without the json extension.
const createPositionsTable = `
CREATE TABLE IF NOT EXISTS ais_msg_123 (
	id                  INTEGER,
	repeat_indicator    INTEGER,
	mmsi                BIGINT,
	nav_status          INTEGER,
	rot_over_range      BOOLEAN,
	rot                 FLOAT,
	sog                 FLOAT,
	position_accuracy   INTEGER,
	x                   DOUBLE,
	y                   DOUBLE,
	cog                 FLOAT,
	true_heading        INTEGER,
	timestamp           INTEGER,
	special_manoeuvre   INTEGER,
	spare               INTEGER,
	raim                BOOLEAN,
	sync_state          INTEGER,
	slot_timeout        INTEGER,
	slot_number         INTEGER,
	tagblock_group      VARCHAR,
	tagblock_line_count INTEGER,
	tagblock_station    VARCHAR,
	tagblock_timestamp  BIGINT,
	received_stations   INTEGER,
	slot_offset         INTEGER,
	utc_hour            INTEGER,
	utc_min             INTEGER,
	slot_increment      INTEGER,
	slots_to_allocate   INTEGER,
	keep_flag           BOOLEAN
)`

const createStaticTable = `
CREATE TABLE IF NOT EXISTS ais_msg_5 (
	id                         INTEGER,
	repeat_indicator           INTEGER,
	mmsi                       BIGINT,
	ais_version                INTEGER,
	imo                        BIGINT,
	call_sign                  VARCHAR,
	ship_name                  VARCHAR,
	type_of_ship_and_cargo     INTEGER,
	to_bow                     INTEGER,
	to_stern                   INTEGER,
	to_port                    INTEGER,
	to_starboard               INTEGER,
	position_fixing_device     INTEGER,
	eta                        VARCHAR,
	max_present_static_draught FLOAT,
	destination                VARCHAR,
	dte                        BOOLEAN,
	tagblock_timestamp         BIGINT
)`

const positionColumns = `id, repeat_indicator, mmsi, nav_status, rot_over_range, rot, sog,
	position_accuracy, x, y, cog, true_heading, timestamp, special_manoeuvre, spare, raim,
	sync_state, slot_timeout, slot_number, tagblock_group, tagblock_line_count,
	tagblock_station, tagblock_timestamp, received_stations, slot_offset, utc_hour,
	utc_min, slot_increment, slots_to_allocate, keep_flag`

const staticColumns = `id, repeat_indicator, mmsi, ais_version, imo, call_sign, ship_name,
	type_of_ship_and_cargo, to_bow, to_stern, to_port, to_starboard,
	position_fixing_device, eta, max_present_static_draught, destination, dte,
	tagblock_timestamp`

// validPosition excludes the "not available" sentinels and garbage coordinates.
const (
	validPosition       = "x BETWEEN -180 AND 180 AND y BETWEEN -90 AND 90"
	validPositionJoined = "p.x BETWEEN -180 AND 180 AND p.y BETWEEN -90 AND 90"
)
