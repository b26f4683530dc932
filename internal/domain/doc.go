// Package domain models NOAA Storm Prediction Center (SPC) severe weather
// products as canonical risk records.
//
// # Products
//
// The SPC publishes four product families this service ingests:
//
//   - Categorical convective outlooks (RSS): day-1/2/3 text products with a
//     categorical risk level (TSTM, MRGL, SLGT, ENH, MDT, HIGH).
//   - Mesoscale discussions (RSS): free-text bulletins describing a developing
//     threat over a bounded area, with an embedded LAT...LON polygon.
//   - Probabilistic severe-threat shapes (GeoJSON): tornado, wind, and hail
//     probability contours with a DN percentage bucket and an optional
//     "significant" hatched layer.
//   - Watches (RSS): tornado and severe thunderstorm watch issuances.
//
// # SPC text conventions
//
// MD validity windows use DDHHMM Z notation:
//
//	"Valid 011830Z - 012030Z"  →  18:30 to 20:30 UTC on day 01 of the
//	issuance month. A window whose start day exceeds its end day spans a
//	month boundary.
//
// MD polygons are encoded as a LAT...LON line of coordinate pairs in
// hundredths of degrees, latitude before longitude:
//
//	"LAT...LON 3412 9703 3418 9654 ..."  →  (34.12, -97.03), (34.18, -96.54)
//
// Longitudes at or east of 50 after scaling are west of 100°W and gain 100
// before negation (SPC drops the leading "1" for longitudes ≥ 100°W), so
// "0212" decodes to -102.12.
//
// # Identity keys
//
// Every record derives a deterministic identity key from its natural fields
// (family token, issued epoch seconds, and a disambiguating level or
// magnitude). Re-ingesting the same bulletin produces the same key, so
// repository writes are plain upserts and no "already seen" index exists.
package domain
