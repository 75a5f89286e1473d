// internal/status/constants.go
package status

// Device Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the device health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the board status of the last failed pass.
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the device has been in error.
const SlotSecondsInError = 2

// SlotGlucose holds the last reported glucose in mg/dL (0 = restart or error).
const SlotGlucose = 3

// SlotBattery holds the raw battery charge time.
const SlotBattery = 4

// SlotBoardStatus holds the raw board status byte.
const SlotBoardStatus = 5

// SlotSenderHigh and SlotSenderLow hold the 4-byte sender id, big-endian.
const SlotSenderHigh = 6
const SlotSenderLow = 7

// SlotReports counts glucose reports received (wraps at 65535).
const SlotReports = 8

// ---- RESERVED RANGE ----

// Slots 9–10 are reserved for future use.
const SlotReservedStart = 9
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// LiveSlots is the number of leading slots carried by a Snapshot.
const LiveSlots = SlotReports + 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

// HealthUnknown represents a boot or restart state.
const HealthUnknown uint16 = 0

// HealthOK represents a device delivering readings.
const HealthOK uint16 = 1

// HealthError represents a device reporting RFID errors.
const HealthError uint16 = 2

// HealthStale represents a device that stopped reporting.
const HealthStale uint16 = 3

