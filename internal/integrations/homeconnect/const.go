package homeconnect

import (
	"time"

	"homelink/pkg/host"
)

// Domain is the integration domain.
const Domain = "home_connect"

// ScanInterval is the minimum time between two refreshes of one account.
const ScanInterval = time.Minute

// Service data attributes.
const (
	AttrDeviceID = "device_id"
	AttrKey      = "key"
	AttrValue    = "value"
	AttrUnit     = "unit"
	AttrProgram  = "program"
)

// Services.
const (
	ServiceOptionActive   = "option_active"
	ServiceOptionSelected = "option_selected"
	ServiceSetting        = "setting"
	ServicePauseProgram   = "pause_program"
	ServiceResumeProgram  = "resume_program"
	ServiceSelectProgram  = "select_program"
	ServiceStartProgram   = "start_program"
)

// Commands.
const (
	BSHPause  = "BSH.Common.Command.PauseProgram"
	BSHResume = "BSH.Common.Command.ResumeProgram"
)

// Config entry version. Entries at 1.1 carry unique IDs with the old
// suffixes below.
const (
	EntryVersion      = 1
	EntryMinorVersion = 2
)

// Platforms the entry is forwarded to.
var Platforms = []host.Platform{
	host.PlatformBinarySensor,
	host.PlatformLight,
	host.PlatformNumber,
	host.PlatformSensor,
	host.PlatformSwitch,
	host.PlatformTime,
}

// SuffixPair maps an old unique-ID suffix to its replacement.
type SuffixPair struct {
	Old string
	New string
}

// OldNewUniqueIDSuffixes is checked in order; the first match wins.
var OldNewUniqueIDSuffixes = []SuffixPair{
	{"ChildLock", "BSH.Common.Setting.ChildLock"},
	{"Operation State", "BSH.Common.Status.OperationState"},
	{"Light", "Cooking.Common.Setting.Lighting"},
	{"AmbientLight", "BSH.Common.Setting.AmbientLightEnabled"},
	{"Power", "BSH.Common.Setting.PowerState"},
	{"Remaining Program Time", "BSH.Common.Option.RemainingProgramTime"},
	{"Duration", "BSH.Common.Option.Duration"},
	{"Program Progress", "BSH.Common.Option.ProgramProgress"},
	{"Remote Control", "BSH.Common.Status.RemoteControlActive"},
	{"Remote Start", "BSH.Common.Status.RemoteControlStartAllowed"},
	{"Supermode Freezer", "Refrigeration.FridgeFreezer.Setting.SuperModeFreezer"},
	{"Supermode Refrigerator", "Refrigeration.FridgeFreezer.Setting.SuperModeRefrigerator"},
	{"Dispenser Enabled", "Refrigeration.Common.Setting.Dispenser.Enabled"},
	{"Internal Light", "Refrigeration.Common.Setting.Light.Internal.Power"},
	{"External Light", "Refrigeration.Common.Setting.Light.External.Power"},
	{"Chiller Door", "Refrigeration.Common.Status.Door.ChillerCommon"},
	{"Freezer Door", "Refrigeration.Common.Status.Door.Freezer"},
	{"Refrigerator Door", "Refrigeration.Common.Status.Door.Refrigerator"},
	{"Door Alarm Freezer", "Refrigeration.FridgeFreezer.Event.DoorAlarmFreezer"},
	{"Door Alarm Refrigerator", "Refrigeration.FridgeFreezer.Event.DoorAlarmRefrigerator"},
	{"Temperature Alarm Freezer", "Refrigeration.FridgeFreezer.Event.TemperatureAlarmFreezer"},
	{"Bean Container Empty", "ConsumerProducts.CoffeeMaker.Event.BeanContainerEmpty"},
	{"Water Tank Empty", "ConsumerProducts.CoffeeMaker.Event.WaterTankEmpty"},
	{"Drip Tray Full", "ConsumerProducts.CoffeeMaker.Event.DripTrayFull"},
}
