// Package testutil provides fixtures shared by the contract, API and CLI tests.
//
// # Principals
//
//   - Owner: contract owner (the deployer in every fixture)
//   - Farmer: registers farms and ships crops
//   - Certifier, Tester: principals granted roles by the owner in tests
//   - Stranger: holds no role at all
//
// # Stores and clocks
//
//   - NewMemoryStore: a fresh in-memory world state closed with the test
//   - NewClock: a manual block clock starting at FixtureHeight
//
// # Fixture values
//
// The farm, certification, shipment and test values mirror the records used across
// the contract suites: farm123 "Green Acres" in "California, USA", cert123 for
// "Organic Tomatoes", ship123 from California to New York, test123 for pesticide residue.
package testutil
