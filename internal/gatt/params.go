package gatt

import (
	"encoding/binary"
	"fmt"

	"github.com/go-ble/ble"
)

// Well-known descriptor UUIDs
var (
	CCCDUUID            = ble.UUID16(0x2902)
	ReportReferenceUUID = ble.UUID16(0x2908)
)

// ServiceKind selects a primary or secondary service declaration.
type ServiceKind uint8

const (
	ServicePrimary ServiceKind = iota + 1
	ServiceSecondary
)

func (k ServiceKind) String() string {
	switch k {
	case ServicePrimary:
		return "primary"
	case ServiceSecondary:
		return "secondary"
	default:
		return fmt.Sprintf("service-kind(%d)", uint8(k))
	}
}

// CharacteristicParams describes a characteristic to register.
// A CCCD is created when Props includes ble.CharNotify or ble.CharIndicate.
type CharacteristicParams struct {
	UUID      ble.UUID
	Props     ble.Property
	MaxLen    int
	InitValue []byte

	ReadAccess      SecurityReq
	WriteAccess     SecurityReq
	CCCDWriteAccess SecurityReq
}

// DescriptorParams describes a descriptor to register on a characteristic.
type DescriptorParams struct {
	UUID        ble.UUID
	MaxLen      int
	Value       []byte
	ReadAccess  SecurityReq
	WriteAccess SecurityReq
}

// HVXType selects between notification and indication.
type HVXType uint8

const (
	HVXNotification HVXType = iota + 1
	HVXIndication
)

// HVXParams carries one handle value notification or indication.
type HVXParams struct {
	Handle AttrHandle
	Type   HVXType
	Offset int
	Data   []byte
}

// CCCD bit values
const (
	CCCDNotify   uint16 = 0x0001
	CCCDIndicate uint16 = 0x0002
)

// CCCDLen is the fixed size of a CCCD value.
const CCCDLen = 2

// IsNotificationEnabled reports whether bit 0 of a little-endian CCCD value is set.
func IsNotificationEnabled(cccd []byte) bool {
	if len(cccd) < CCCDLen {
		return false
	}
	return binary.LittleEndian.Uint16(cccd)&CCCDNotify != 0
}

// IsIndicationEnabled reports whether bit 1 of a little-endian CCCD value is set.
func IsIndicationEnabled(cccd []byte) bool {
	if len(cccd) < CCCDLen {
		return false
	}
	return binary.LittleEndian.Uint16(cccd)&CCCDIndicate != 0
}

// EncodeCCCD returns the 2-byte little-endian CCCD value for the given flags.
func EncodeCCCD(notify, indicate bool) []byte {
	var v uint16
	if notify {
		v |= CCCDNotify
	}
	if indicate {
		v |= CCCDIndicate
	}
	b := make([]byte, CCCDLen)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// ReportType is the HID report type carried by a Report Reference descriptor.
type ReportType uint8

const (
	ReportTypeInput ReportType = iota + 1
	ReportTypeOutput
	ReportTypeFeature
)

func (t ReportType) String() string {
	switch t {
	case ReportTypeInput:
		return "input"
	case ReportTypeOutput:
		return "output"
	case ReportTypeFeature:
		return "feature"
	default:
		return fmt.Sprintf("report-type(%d)", uint8(t))
	}
}

// ParseReportType converts "input", "output" or "feature" to a ReportType.
func ParseReportType(name string) (ReportType, error) {
	switch name {
	case "input":
		return ReportTypeInput, nil
	case "output":
		return ReportTypeOutput, nil
	case "feature":
		return ReportTypeFeature, nil
	default:
		return 0, fmt.Errorf("unknown report type %q (must be input, output, or feature)", name)
	}
}

// ReportReferenceLen is the encoded size of a Report Reference value.
const ReportReferenceLen = 2

// ReportReference is the value of a Report Reference descriptor.
type ReportReference struct {
	ID   uint8
	Type ReportType
}

// Encode returns the descriptor value: report ID followed by report type.
func (r ReportReference) Encode() []byte {
	return []byte{r.ID, uint8(r.Type)}
}
