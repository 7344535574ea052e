// Package topics provides built-in topic repository implementations.
//
// Topic repositories answer partition discovery and watermark queries for the
// coordinator and the stats aggregation. The package includes:
//
//   - Static: Fixed topology with adjustable watermarks
//
// Production deployments implement types.TopicRepository against their topic
// storage engine; Static serves tests, examples, and embedded setups.
package topics
