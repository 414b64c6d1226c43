package plant

import (
	"fmt"
	"time"
)

// Kind is the value encoding of a point.
type Kind int

const (
	// Analog is a short floating point measurement (M_ME_NC_1)
	Analog Kind = iota
	// BinaryStatus is a single point information (M_SP_NA_1)
	BinaryStatus
	// BinaryCommand is the target of a single command (C_SC_NA_1)
	BinaryCommand
)

func (k Kind) String() string {
	switch k {
	case Analog:
		return "Analog"
	case BinaryStatus:
		return "BinaryStatus"
	case BinaryCommand:
		return "BinaryCommand"
	default:
		return "Unknown"
	}
}

// Group is the role a point plays in the plant. Groups are also the
// order in which an interrogation reports points.
type Group int

const (
	GroupInverter Group = iota
	GroupEnvironment
	GroupTotals
	GroupStatus
	GroupCommand
)

func (g Group) String() string {
	switch g {
	case GroupInverter:
		return "Inverter"
	case GroupEnvironment:
		return "Environment"
	case GroupTotals:
		return "Totals"
	case GroupStatus:
		return "Status"
	case GroupCommand:
		return "Command"
	default:
		return "Unknown"
	}
}

// Address plan of the station.
const (
	InverterCount       = 3
	InverterFieldCount  = 10
	InverterBaseAddress = 1
	EnvironmentBase     = 100
	TotalsBase          = 200
	StatusBase          = 1001
	CommandBase         = 2001
)

// Offsets of the analog fields of one inverter.
const (
	FieldDCVoltage = iota
	FieldDCCurrent
	FieldDCPower
	FieldACVoltageA
	FieldACVoltageB
	FieldACVoltageC
	FieldACCurrentA
	FieldACCurrentB
	FieldACCurrentC
	FieldACPower
)

// Environment point addresses.
const (
	AddrIrradiance    = EnvironmentBase + iota
	AddrAmbientTemp
	AddrModuleTemp
	AddrWindSpeed
	AddrWindDirection
	AddrHumidity
)

// Plant total point addresses.
const (
	AddrTotalActivePower = TotalsBase + iota
	AddrTotalReactivePower
	AddrPowerFactor
	AddrGridFrequency
	AddrDailyEnergy
	AddrTotalEnergy
)

// Report thresholds per point class.
const (
	DefaultThreshold    = 1.0
	IrradianceThreshold = 50.0
	EnergyThreshold     = 10.0
)

// Point is one telemetry point of the station.
type Point struct {
	Address int
	Kind    Kind
	Group   Group
	Name    string
	Unit    string

	// Value is used by analog points, State by binary ones.
	Value float64
	State bool

	LastReportedValue float64
	LastReportedState bool
	LastReportTime    time.Time

	Threshold float64

	// Pair links a command target to its status point and back.
	Pair int
}

func (p Point) String() string {
	switch p.Kind {
	case Analog:
		return fmt.Sprintf("IOA=%d (%s) %.2f%s", p.Address, p.Name, p.Value, p.Unit)
	default:
		return fmt.Sprintf("IOA=%d (%s) %s", p.Address, p.Name, onOff(p.State))
	}
}

// InverterAddress returns the address of one analog field of inverter inv (0 based).
func InverterAddress(inv, field int) int {
	return InverterBaseAddress + inv*InverterFieldCount + field
}

// StatusAddress returns the status point address of inverter inv (0 based).
func StatusAddress(inv int) int {
	return StatusBase + inv
}

// CommandAddress returns the command target address of inverter inv (0 based).
func CommandAddress(inv int) int {
	return CommandBase + inv
}

var inverterFields = [InverterFieldCount]struct {
	name string
	unit string
}{
	{"DC_Voltage", "V"},
	{"DC_Current", "A"},
	{"DC_Power", "kW"},
	{"AC_Voltage_A", "V"},
	{"AC_Voltage_B", "V"},
	{"AC_Voltage_C", "V"},
	{"AC_Current_A", "A"},
	{"AC_Current_B", "A"},
	{"AC_Current_C", "A"},
	{"AC_Power", "kW"},
}

type seed struct {
	name      string
	unit      string
	value     float64
	threshold float64
}

var environmentSeeds = []seed{
	{"Irradiance", "W/m2", 800, IrradianceThreshold},
	{"Ambient_Temp", "C", 25, DefaultThreshold},
	{"Module_Temp", "C", 45, DefaultThreshold},
	{"Wind_Speed", "m/s", 3, DefaultThreshold},
	{"Wind_Direction", "deg", 180, DefaultThreshold},
	{"Humidity", "%", 60, DefaultThreshold},
}

var totalsSeeds = []seed{
	{"Total_Active_Power", "kW", 45, DefaultThreshold},
	{"Total_Reactive_Power", "kvar", 5, DefaultThreshold},
	{"Power_Factor", "", 0.98, DefaultThreshold},
	{"Grid_Frequency", "Hz", 50, DefaultThreshold},
	{"Daily_Energy", "kWh", 0, EnergyThreshold},
	{"Total_Energy", "MWh", 12500, EnergyThreshold},
}

// DefaultPoints builds the fixed point table of the station in group order.
func DefaultPoints() []Point {
	points := make([]Point, 0, InverterCount*InverterFieldCount+len(environmentSeeds)+len(totalsSeeds)+2*InverterCount)

	for inv := 0; inv < InverterCount; inv++ {
		for field, def := range inverterFields {
			points = append(points, Point{
				Address:   InverterAddress(inv, field),
				Kind:      Analog,
				Group:     GroupInverter,
				Name:      fmt.Sprintf("INV%d_%s", inv+1, def.name),
				Unit:      def.unit,
				Threshold: DefaultThreshold,
			})
		}
	}
	for i, s := range environmentSeeds {
		points = append(points, analogFromSeed(EnvironmentBase+i, GroupEnvironment, s))
	}
	for i, s := range totalsSeeds {
		points = append(points, analogFromSeed(TotalsBase+i, GroupTotals, s))
	}
	for inv := 0; inv < InverterCount; inv++ {
		points = append(points, Point{
			Address:           StatusAddress(inv),
			Kind:              BinaryStatus,
			Group:             GroupStatus,
			Name:              fmt.Sprintf("INV%d_Status", inv+1),
			State:             true,
			LastReportedState: true,
			Pair:              CommandAddress(inv),
		})
	}
	for inv := 0; inv < InverterCount; inv++ {
		points = append(points, Point{
			Address: CommandAddress(inv),
			Kind:    BinaryCommand,
			Group:   GroupCommand,
			Name:    fmt.Sprintf("INV%d_Control", inv+1),
			Pair:    StatusAddress(inv),
		})
	}
	return points
}

func analogFromSeed(addr int, group Group, s seed) Point {
	return Point{
		Address:   addr,
		Kind:      Analog,
		Group:     group,
		Name:      s.name,
		Unit:      s.unit,
		Value:     s.value,
		Threshold: s.threshold,
	}
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
