// Package influxdb records air-conditioner telemetry in InfluxDB v2.
//
// Every successful device refresh becomes one point in the ac_state
// measurement, tagged with the device name:
//
//	ac_state,device=living power_state=true,target_temperature=24,
//	    operational_mode=2i,indoor_temperature=22.5 1700000000000000000
//
// Writes are batched (batch_size, flush_interval) and never block the sync
// engine. Batch failures are reported through SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("telemetry write failed", "error", err) })
package influxdb
