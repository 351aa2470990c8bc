// Package events defines the domain events fired by the object store when
// the fleet model changes.
//
// Event is a closed set:
//   - VehicleChanged: any vehicle attribute changed
//   - TransportOrderChanged: a transport order changed
//   - OrderSequenceChanged: an order sequence changed
//   - PeripheralJobChanged: a peripheral job changed
//   - PathLockChanged: a path was locked or unlocked
//
// Consumers react through a Handlers table instead of type switches of
// their own.
package events
