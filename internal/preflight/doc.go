// Package preflight provides readiness checks for the filesystem paths, key
// material and feed endpoint that podsig depends on.
//
// These checks run in two contexts:
//   - "podsig resign" calls RunAll before reconciling and aborts when any
//     check fails, so a missing key store never produces a half-signed tree.
//   - "podsig doctor" renders RunAll plus the network check CheckFeedEndpoint.
package preflight
