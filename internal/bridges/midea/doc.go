// Package midea keeps Midea air conditioners and openHAB items in step.
//
// The Engine is the synchronization core. It holds a SyncStore with the last
// canonical hub string seen on each side (hub and device) for every device
// property, and it only propagates a value when it differs from what the
// target side is known to hold. A value is committed to the store only after
// the target side confirmed the write, so a failed push is retried the next
// time the same value is observed.
//
// Two drivers feed the engine:
//
//   - Scheduler polls every device on a fixed interval and hands the refreshed
//     values to Engine.ObserveDeviceSnapshot (device → hub).
//   - EventWorker follows the hub's event stream and hands item changes to
//     Engine.ObserveHubChange (hub → device).
//
// Items are named "<prefix>_<device>_<property>", for example
// "ac_lounge_target_temperature". Only read-write properties travel from the
// hub to a device; read-only ones (temperatures, online, active) are reported
// by the device alone.
//
// The Roster maps configured device names to cloud appliances and is swapped
// atomically when it is refreshed, which happens at start-up and whenever a
// device reports itself offline.
//
// Bridge wires all of the above together with an optional MQTT health reporter
// and state mirror.
package midea
