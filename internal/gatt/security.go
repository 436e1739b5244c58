package gatt

import (
	"fmt"
	"strings"
)

// SecurityReq is the access requirement attached to an attribute operation.
// The zero value denies access.
type SecurityReq uint8

const (
	SecNoAccess SecurityReq = iota
	SecOpen
	SecJustWorks
	SecMITM
	SecLESCMITM
	SecSigned
	SecSignedMITM
)

var securityNames = map[SecurityReq]string{
	SecNoAccess:   "no_access",
	SecOpen:       "open",
	SecJustWorks:  "just_works",
	SecMITM:       "mitm",
	SecLESCMITM:   "lesc_mitm",
	SecSigned:     "signed",
	SecSignedMITM: "signed_mitm",
}

func (s SecurityReq) String() string {
	if name, ok := securityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("security(%d)", uint8(s))
}

// ParseSecurityReq converts a config name such as "open" or "mitm" to a SecurityReq.
// Matching is case-insensitive and accepts dashes in place of underscores.
func ParseSecurityReq(name string) (SecurityReq, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for req, n := range securityNames {
		if n == normalized {
			return req, nil
		}
	}
	return SecNoAccess, fmt.Errorf("unknown security requirement %q", name)
}

func (s SecurityReq) MarshalText() ([]byte, error) {
	if _, ok := securityNames[s]; !ok {
		return nil, fmt.Errorf("unknown security requirement %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *SecurityReq) UnmarshalText(text []byte) error {
	req, err := ParseSecurityReq(string(text))
	if err != nil {
		return err
	}
	*s = req
	return nil
}
