package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/midea-bridge/internal/codec"
)

// SnapshotMeasurement is the measurement device snapshots are written to.
const SnapshotMeasurement = "ac_state"

// WriteSnapshot records one refreshed device state as a single point tagged
// with the device name. Booleans and decimals are written as-is and enum
// properties as their device ordinal. Unset values are left out; a snapshot
// with nothing set writes no point.
func (c *Client) WriteSnapshot(device string, values map[codec.Property]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	point := snapshotPoint(device, values, at)
	if point == nil {
		return
	}
	c.writeAPI.WritePoint(point)
}

func snapshotPoint(device string, values map[codec.Property]any, at time.Time) *write.Point {
	fields := make(map[string]any, len(values))
	for p, v := range values {
		switch x := v.(type) {
		case bool, float64:
			fields[string(p)] = x
		case codec.Mode:
			fields[string(p)] = int64(x)
		case codec.Fan:
			fields[string(p)] = int64(x)
		case codec.Swing:
			fields[string(p)] = int64(x)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return write.NewPoint(SnapshotMeasurement, map[string]string{"device": device}, fields, at)
}
