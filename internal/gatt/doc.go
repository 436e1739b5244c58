// Package gatt defines the vocabulary shared between GATT services and the
// stack that hosts them.
//
// It provides:
//   - Opaque handle types for services, attributes and connections
//   - Registration parameters for characteristics and descriptors
//   - Stack events delivered to service observers
//   - The collaborator interfaces a service is built against (Registry,
//     ConnectionDirectory, NotificationTransport)
//   - A typed error taxonomy shared by services and hosts
package gatt
