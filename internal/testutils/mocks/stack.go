// Package mocks holds testify mocks of the gatt collaborator interfaces.
package mocks

import (
	"github.com/go-ble/ble"
	"github.com/srg/edad/internal/gatt"
	"github.com/stretchr/testify/mock"
)

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) AddService(kind gatt.ServiceKind, uuid ble.UUID) (gatt.ServiceHandle, error) {
	args := m.Called(kind, uuid)
	return args.Get(0).(gatt.ServiceHandle), args.Error(1)
}

func (m *MockRegistry) AddCharacteristic(svc gatt.ServiceHandle, p gatt.CharacteristicParams) (gatt.CharacteristicHandles, error) {
	args := m.Called(svc, p)
	return args.Get(0).(gatt.CharacteristicHandles), args.Error(1)
}

func (m *MockRegistry) AddDescriptor(valueHandle gatt.AttrHandle, p gatt.DescriptorParams) (gatt.AttrHandle, error) {
	args := m.Called(valueHandle, p)
	return args.Get(0).(gatt.AttrHandle), args.Error(1)
}

func (m *MockRegistry) SetValue(conn gatt.ConnHandle, h gatt.AttrHandle, value []byte) error {
	args := m.Called(conn, h, value)
	return args.Error(0)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Handles() []gatt.ConnHandle {
	args := m.Called()
	return args.Get(0).([]gatt.ConnHandle)
}

func (m *MockDirectory) Status(conn gatt.ConnHandle) gatt.ConnStatus {
	args := m.Called(conn)
	return args.Get(0).(gatt.ConnStatus)
}

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Notify(conn gatt.ConnHandle, p gatt.HVXParams) error {
	args := m.Called(conn, p)
	return args.Error(0)
}
